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

// Package signalgraph is a fine-grained reactive dependency tracker: signals,
// memoized derivations, and effects wired together by dependency tracking and
// tri-state (clean/check/dirty) dirty propagation.
//
// There is no implicit thread-local in Go, so the "current subscriber"
// pointer used by dependency tracking is keyed per-goroutine via goid,
// mirroring how a single-threaded cooperative scheduler would keep it in a
// plain global: the reload coordinator and supervisor run their reactive
// work on one goroutine, so in practice there is exactly one active entry.
package signalgraph

import (
	"sync"

	"github.com/petermattis/goid"
)

// reaction is anything that can be the "currently executing" subscriber:
// a derivation or an effect.
type reaction interface {
	node
	addDependency(d dependency)
	registerDisposer(key string, cb func())
}

// dependency is anything a reaction can read and depend on: a signal or
// another derivation.
type dependency interface {
	addSubscriber(r reaction)
	removeSubscriber(r reaction)
}

var activeReactions sync.Map // goroutine id -> reaction

func currentReaction() reaction {
	gid := goid.Get()
	if v, ok := activeReactions.Load(gid); ok {
		return v.(reaction)
	}
	return nil
}

// pushReaction installs r as the active reaction for the calling goroutine
// and returns a function that restores the previous one.
func pushReaction(r reaction) (pop func()) {
	gid := goid.Get()
	prev, had := activeReactions.Load(gid)
	activeReactions.Store(gid, r)
	return func() {
		if had {
			activeReactions.Store(gid, prev)
		} else {
			activeReactions.Delete(gid)
		}
	}
}

// track registers dep as a read of the currently active reaction, if any.
// Call this from every Signal.Get / Derivation.Get.
func track(dep dependency) {
	r := currentReaction()
	if r == nil {
		return
	}
	dep.addSubscriber(r)
	r.addDependency(dep)
}

// OnDispose registers a callback that runs when the currently executing
// derivation or effect re-runs or is disposed. A non-empty key coalesces
// repeat registrations within the same run (the last registration wins); an
// empty key always registers a new, independent disposer.
func OnDispose(key string, cb func()) {
	r := currentReaction()
	if r == nil {
		return
	}
	r.registerDisposer(key, cb)
}
