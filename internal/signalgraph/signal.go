/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package signalgraph

import "slices"

// Signal is a reactive cell holding a comparable value of type T. Reads
// register a dependency on the currently active derivation or effect;
// writes that change the value dirty all subscribers.
type Signal[T comparable] struct {
	value T
	subs  []reaction
}

// NewSignal constructs a signal seeded with initial.
func NewSignal[T comparable](initial T) *Signal[T] {
	return &Signal[T]{value: initial}
}

// Get returns the current value, registering a dependency if called while a
// derivation or effect is running.
func (s *Signal[T]) Get() T {
	track(s)
	return s.value
}

// Set writes a new value. A value that compares equal to the current one is
// a no-op: it does not dirty any subscriber, even if a subscriber happens to
// be scheduled for other reasons.
func (s *Signal[T]) Set(v T) {
	if v == s.value {
		return
	}
	s.value = v
	propagateDirty(s.subs)
}

func (s *Signal[T]) addSubscriber(r reaction) {
	if !slices.Contains(s.subs, r) {
		s.subs = append(s.subs, r)
	}
}

func (s *Signal[T]) removeSubscriber(r reaction) {
	if i := slices.Index(s.subs, r); i >= 0 {
		s.subs = slices.Delete(s.subs, i, i+1)
	}
}

// HasSubscribers reports whether any derivation or effect currently depends
// on this signal.
func (s *Signal[T]) HasSubscribers() bool {
	return len(s.subs) > 0
}
