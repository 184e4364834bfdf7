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

// Effect is like a Derivation but has no return value and is always eagerly
// re-executed as soon as it becomes dirty, rather than waiting to be read.
// Registers and runs fn once at construction time.
type Effect struct {
	id    uint64
	owner *Owner

	fn func() error

	state     state
	err       error
	deps      []dependency
	disposers map[string]func()
	anonDisp  []func()
}

// NewEffect constructs and immediately runs fn under owner.
func NewEffect(owner *Owner, fn func() error) *Effect {
	e := &Effect{id: newNodeID(), owner: owner, fn: fn, state: dirty}
	if owner != nil {
		owner.addChild(e)
	}
	e.run()
	return e
}

func (e *Effect) getState() state         { return e.state }
func (e *Effect) setState(s state)        { e.state = s }
func (e *Effect) subscribers() []reaction { return nil }

// resolve exists so an Effect satisfies node; effects have no memoized
// value for a downstream reader to pull, so resolving means running if
// dirty/check — the same thing runIfDirty does.
func (e *Effect) resolve() { e.runIfDirty() }

func (e *Effect) runIfDirty() {
	if e.state == clean {
		return
	}
	e.run()
}

func (e *Effect) run() {
	e.state = computing
	e.runDisposers()

	oldDeps := e.deps
	for _, dep := range oldDeps {
		dep.removeSubscriber(e)
	}
	e.deps = nil

	pop := pushReaction(e)
	err := e.fn()
	pop()

	e.err = err
	e.state = clean
}

func (e *Effect) addDependency(dep dependency) {
	if !slices.Contains(e.deps, dep) {
		e.deps = append(e.deps, dep)
	}
}

func (e *Effect) registerDisposer(key string, cb func()) {
	if key == "" {
		e.anonDisp = append(e.anonDisp, cb)
		return
	}
	if e.disposers == nil {
		e.disposers = make(map[string]func())
	}
	e.disposers[key] = cb
}

func (e *Effect) runDisposers() {
	for _, cb := range e.anonDisp {
		cb()
	}
	e.anonDisp = nil
	for _, cb := range e.disposers {
		cb()
	}
	e.disposers = nil
}

// Err returns the error from the effect's most recent run, if any. Per
// spec §4.1, an erroring effect logs through the caller's error filter and
// remains subscribed; signalgraph itself only surfaces the error, it does
// not decide retry policy (that's internal/reload's job).
func (e *Effect) Err() error { return e.err }

// Dispose detaches the effect from its dependencies, runs its disposers,
// and removes it from its owner.
func (e *Effect) Dispose() {
	e.runDisposers()
	for _, dep := range e.deps {
		dep.removeSubscriber(e)
	}
	e.deps = nil
	if e.owner != nil {
		e.owner.removeChild(e)
	}
}
