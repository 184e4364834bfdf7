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

// Derivation is a memoized computation over signals and other derivations.
// It recomputes lazily (only when .Get is called on a dirty or
// maybe-dirty/"check" node) and re-records its dependency set on every run.
type Derivation[T comparable] struct {
	id    uint64
	owner *Owner

	fn func() (T, error)

	state     state
	value     T
	hasValue  bool
	err       error
	deps      []dependency
	subs      []reaction
	disposers map[string]func()
	anonDisp  []func()
}

// NewDerivation constructs a derivation under owner (nil leaves it unowned,
// so no owner's Dispose reaches it). The derivation is not run until first read.
func NewDerivation[T comparable](owner *Owner, fn func() (T, error)) *Derivation[T] {
	d := &Derivation[T]{
		id:    newNodeID(),
		owner: owner,
		fn:    fn,
		state: dirty,
	}
	if owner != nil {
		owner.addChild(d)
	}
	return d
}

// Get returns the memoized value, recomputing first if the derivation is
// dirty or "check" (and an upstream actually changed). Registers a
// dependency on the currently active reaction, if any.
func (d *Derivation[T]) Get() (T, error) {
	track(d)
	d.resolve()
	return d.value, d.err
}

func (d *Derivation[T]) getState() state       { return d.state }
func (d *Derivation[T]) setState(s state)      { d.state = s }
func (d *Derivation[T]) subscribers() []reaction { return d.subs }

func (d *Derivation[T]) addSubscriber(r reaction) {
	if !slices.Contains(d.subs, r) {
		d.subs = append(d.subs, r)
	}
}

func (d *Derivation[T]) removeSubscriber(r reaction) {
	if i := slices.Index(d.subs, r); i >= 0 {
		d.subs = slices.Delete(d.subs, i, i+1)
	}
}

func (d *Derivation[T]) addDependency(dep dependency) {
	if !slices.Contains(d.deps, dep) {
		d.deps = append(d.deps, dep)
	}
}

func (d *Derivation[T]) registerDisposer(key string, cb func()) {
	if key == "" {
		d.anonDisp = append(d.anonDisp, cb)
		return
	}
	if d.disposers == nil {
		d.disposers = make(map[string]func())
	}
	d.disposers[key] = cb // duplicate keys coalesce: last registration wins
}

// resolve implements the tri-state algorithm from spec §4.1: a clean node is
// a no-op; a dirty node recomputes; a check node first resolves its
// dependencies (which may upgrade it to dirty via propagateDirty) and only
// recomputes if that happened, otherwise it settles back to clean without
// running fn again.
func (d *Derivation[T]) resolve() {
	switch d.state {
	case clean:
		return
	case computing:
		d.err = ErrCycle
		return
	case check:
		for _, dep := range d.deps {
			if r, ok := dep.(node); ok {
				r.resolve()
			}
		}
		if d.state == dirty {
			d.recompute()
		} else {
			d.state = clean
		}
	case dirty:
		d.recompute()
	}
}

func (d *Derivation[T]) recompute() {
	d.state = computing
	d.runDisposers()

	oldDeps := d.deps
	for _, dep := range oldDeps {
		dep.removeSubscriber(d)
	}
	d.deps = nil

	pop := pushReaction(d)
	newVal, err := d.fn()
	pop()

	d.err = err
	if err != nil {
		// previous value untouched; remains dirty so the next Get retries
		d.state = dirty
		return
	}

	changed := !d.hasValue || newVal != d.value
	d.value = newVal
	d.hasValue = true
	d.state = clean

	if changed {
		propagateDirty(d.subs)
	}
}

func (d *Derivation[T]) runDisposers() {
	for _, cb := range d.anonDisp {
		cb()
	}
	d.anonDisp = nil
	for _, cb := range d.disposers {
		cb()
	}
	d.disposers = nil
}

// Invalidate forces the derivation dirty as if an upstream it cannot itself
// model had changed — the hook a filesystem watcher uses to dirty a
// load-derivation whose true dependency (the file on disk) lives outside
// the signal graph. A no-op if the derivation is already dirty or
// computing.
func (d *Derivation[T]) Invalidate() {
	if d.state == dirty || d.state == computing {
		return
	}
	d.state = dirty
	propagateDirty(d.subs)
}

// Dispose detaches the derivation from its upstream dependencies, runs its
// disposers, and removes it from its owner.
func (d *Derivation[T]) Dispose() {
	d.runDisposers()
	for _, dep := range d.deps {
		dep.removeSubscriber(d)
	}
	d.deps = nil
	if d.owner != nil {
		d.owner.removeChild(d)
	}
}
