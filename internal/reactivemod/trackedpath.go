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
package reactivemod

import "github.com/hotmod-dev/hotmod/internal/signalgraph"

// trackedPath is a bare generation counter signal backing a path that
// participates in the fs-signal index without carrying a loaded value of
// its own (an extra-watch path, or a force-restart path like the env file).
type trackedPath struct {
	cell *signalgraph.Signal[uint64]
	gen  uint64
}

func newTrackedPath() *trackedPath {
	return &trackedPath{cell: signalgraph.NewSignal[uint64](0)}
}

// touch registers a dependency on this path for the currently active
// reaction, if any.
func (t *trackedPath) touch() {
	t.cell.Get()
}

func (t *trackedPath) invalidate() {
	t.gen++
	t.cell.Set(t.gen)
}

// hasSubscribers reports whether any reaction currently reads this path.
func (t *trackedPath) hasSubscribers() bool {
	return t.cell.HasSubscribers()
}
