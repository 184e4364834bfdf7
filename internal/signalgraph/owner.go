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

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Disposable is anything an Owner can dispose in bulk.
type Disposable interface {
	Dispose()
}

var nextNodeID uint64

func newNodeID() uint64 {
	return atomic.AddUint64(&nextNodeID, 1)
}

// Owner is an arena for derivations and effects: disposing it recursively
// disposes every child. A reload does not dispose owners; a module's
// load-derivation is re-run in place under the same owner.
// Nodes reference their owner directly rather than by id lookup into a
// table, but the important property from spec §9 ("cyclic ownership → use
// an arena; disposal frees the arena") still holds: nothing outside the
// owner subtree keeps a node alive past Dispose.
type Owner struct {
	mu       sync.Mutex
	id       uint64
	parent   *Owner
	children []Disposable
}

// NewOwner creates a fresh owner, optionally rooted under parent. A nil
// parent creates a new arena root (cmd/root.go creates one at startup for
// the registry and the reload coordinator).
func NewOwner(parent *Owner) *Owner {
	o := &Owner{id: newNodeID(), parent: parent}
	if parent != nil {
		parent.addChild(o)
	}
	return o
}

func (o *Owner) addChild(child Disposable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !slices.Contains(o.children, child) {
		o.children = append(o.children, child)
	}
}

func (o *Owner) removeChild(child Disposable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := slices.Index(o.children, child); i >= 0 {
		o.children = slices.Delete(o.children, i, i+1)
	}
}

// Dispose detaches this owner from its parent and disposes every child.
func (o *Owner) Dispose() {
	if o.parent != nil {
		o.parent.removeChild(o)
	}
	o.mu.Lock()
	children := o.children
	o.children = nil
	o.mu.Unlock()

	for _, child := range children {
		child.Dispose()
	}
}
