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
	"context"
	"slices"
	"sync"
)

// AsyncEffect is the task+channel translation of spec §9's "coroutine-based
// reactive effects": fn runs on a single dedicated goroutine that owns a
// coalescing "dirty" channel, so overlapping triggers collapse into a single
// re-run requested after the current one finishes, rather than piling up.
type AsyncEffect struct {
	id    uint64
	owner *Owner

	fn func(context.Context) error

	mu        sync.Mutex
	state     state
	err       error
	deps      []dependency
	disposers map[string]func()
	anonDisp  []func()

	trigger chan struct{}
	stop    context.CancelFunc
	done    chan struct{}
}

// NewAsyncEffect starts fn's owning goroutine and runs it once immediately,
// the same way NewEffect does for the synchronous case. The goroutine exits
// when ctx is canceled or Dispose is called.
func NewAsyncEffect(ctx context.Context, owner *Owner, fn func(context.Context) error) *AsyncEffect {
	runCtx, cancel := context.WithCancel(ctx)
	a := &AsyncEffect{
		id:      newNodeID(),
		owner:   owner,
		fn:      fn,
		state:   dirty,
		trigger: make(chan struct{}, 1),
		stop:    cancel,
		done:    make(chan struct{}),
	}
	if owner != nil {
		owner.addChild(a)
	}

	a.trigger <- struct{}{} // run once at construction
	go a.loop(runCtx)

	return a
}

func (a *AsyncEffect) loop(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.trigger:
			a.run(ctx)
		}
	}
}

func (a *AsyncEffect) getState() state {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AsyncEffect) setState(s state) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *AsyncEffect) subscribers() []reaction { return nil }
func (a *AsyncEffect) resolve()                { a.runIfDirty() }

// runIfDirty is called from whichever goroutine mutated a signal this
// effect depends on; it only ever posts to the coalescing trigger channel,
// it never runs fn inline, since fn may suspend.
func (a *AsyncEffect) runIfDirty() {
	if a.getState() == clean {
		return
	}
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

func (a *AsyncEffect) run(ctx context.Context) {
	a.setState(computing)
	a.runDisposers()

	a.mu.Lock()
	oldDeps := a.deps
	a.deps = nil
	a.mu.Unlock()
	for _, dep := range oldDeps {
		dep.removeSubscriber(a)
	}

	pop := pushReaction(a)
	err := a.fn(ctx)
	pop()

	a.mu.Lock()
	a.err = err
	a.state = clean
	a.mu.Unlock()
}

func (a *AsyncEffect) addDependency(dep dependency) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.deps, dep) {
		a.deps = append(a.deps, dep)
	}
}

func (a *AsyncEffect) registerDisposer(key string, cb func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if key == "" {
		a.anonDisp = append(a.anonDisp, cb)
		return
	}
	if a.disposers == nil {
		a.disposers = make(map[string]func())
	}
	a.disposers[key] = cb
}

func (a *AsyncEffect) runDisposers() {
	a.mu.Lock()
	anon := a.anonDisp
	a.anonDisp = nil
	keyed := a.disposers
	a.disposers = nil
	a.mu.Unlock()

	for _, cb := range anon {
		cb()
	}
	for _, cb := range keyed {
		cb()
	}
}

// Err returns the error from the most recent completed run, if any.
func (a *AsyncEffect) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done returns a channel closed once the effect's goroutine has exited.
func (a *AsyncEffect) Done() <-chan struct{} { return a.done }

// Dispose stops the owning goroutine, runs disposers, and detaches from
// dependencies and the owner.
func (a *AsyncEffect) Dispose() {
	a.stop()
	<-a.done
	a.runDisposers()

	a.mu.Lock()
	deps := a.deps
	a.deps = nil
	a.mu.Unlock()
	for _, dep := range deps {
		dep.removeSubscriber(a)
	}
	if a.owner != nil {
		a.owner.removeChild(a)
	}
}
