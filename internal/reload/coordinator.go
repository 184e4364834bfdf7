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
package reload

import (
	"context"
	"sync"

	"github.com/hotmod-dev/hotmod/internal/logging"
	"github.com/hotmod-dev/hotmod/internal/signalgraph"
)

// LoadAppFunc re-executes user imports through the module registry and
// returns the freshly bound application object (spec §4.4 "re-execute user
// imports through C2, producing a fresh application object").
type LoadAppFunc func(ctx context.Context) (any, error)

// RefreshFunc is invoked on an asset-only batch in place of a reload (spec
// §4.4 "invoke the refresh callback, do not invalidate modules, do not
// restart").
type RefreshFunc func(info ReloadInfo) error

// Drainer lets the coordinator ask whatever owns server generations (C5)
// to stop the current one and wait for it to finish, without the
// coordinator needing to know how servers are started. This is the Go
// shape of hmr_runner.py's Reloader.__run reaching into the enclosing
// function's `server`/`finish` closure variables.
type Drainer interface {
	// CurrentServer returns the presently-serving generation's server
	// object, or (nil, false) if no generation is current.
	CurrentServer() (server any, ok bool)
	// Drain requests the current generation exit and blocks until its
	// finish-event fires. No-op if no generation is current.
	Drain(ctx context.Context) error
}

// Coordinator is the reload coordinator (C4): it owns the reload effect,
// the classifier, and the pending-reload-info coalescing buffer.
type Coordinator struct {
	classifier *Classifier
	loadApp    LoadAppFunc
	refresh    RefreshFunc
	hooks      Hooks
	drainer    Drainer

	mu      sync.Mutex
	pending *ReloadInfo

	stateMu    sync.Mutex
	currentApp any
	lastErr    error
	readyCh    chan struct{}

	effect *signalgraph.AsyncEffect
}

// New constructs a coordinator. owner scopes the reload effect's
// lifetime; disposing owner disposes the effect. loadApp is called inside
// the effect and therefore automatically tracks any reactivemod.Registry
// reads it performs as dependencies.
func New(ctx context.Context, owner *signalgraph.Owner, classifier *Classifier, loadApp LoadAppFunc, refresh RefreshFunc, hooks Hooks, drainer Drainer) *Coordinator {
	c := &Coordinator{
		classifier: classifier,
		loadApp:    loadApp,
		refresh:    refresh,
		hooks:      hooks,
		drainer:    drainer,
		readyCh:    make(chan struct{}, 1),
	}
	c.effect = signalgraph.NewAsyncEffect(ctx, owner, c.runCycle)
	return c
}

// OnBatch classifies a watcher batch and either triggers the refresh
// callback (asset-only) or invalidates the relevant signals and lets the
// reload effect's own dirty-tracking schedule a re-run.
func (c *Coordinator) OnBatch(paths []string) {
	cl := c.classifier.Classify(paths)
	d := cl.decide()

	if len(d.info.Files) == 0 && len(d.info.Reasons) == 0 {
		return
	}

	c.callHook("on_change_detected", func() error {
		if c.hooks.OnChangeDetected == nil {
			return nil
		}
		return c.hooks.OnChangeDetected(d.info)
	})

	if d.assetOnly {
		if c.refresh != nil {
			if err := c.refresh(d.info); err != nil {
				logging.Error("asset refresh callback failed: %v", err)
			}
		}
		return
	}

	c.mergePending(d.info)

	restartPaths := union(union(cl.CodeHits, subtract(cl.TrackedHits, cl.AssetHits)),
		union(cl.ExtraHits, cl.ForceRestartHits))
	for p := range restartPaths {
		c.classifier.Registry.Invalidate(p)
	}
}

func (c *Coordinator) mergePending(info ReloadInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		merged := info
		c.pending = &merged
		return
	}
	merged := merge(*c.pending, info)
	c.pending = &merged
}

func (c *Coordinator) drainPending() ReloadInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return newReloadInfo()
	}
	info := *c.pending
	c.pending = nil
	return info
}

func (c *Coordinator) callHook(name string, fn func() error) {
	if err := fn(); err != nil {
		logging.Error("hook %q failed: %v", name, err)
	}
}

// runCycle is the reload effect's body: the five-phase sequence from spec
// §4.4, ported from hmr_runner.py's Reloader.__run. Any reactivemod.Registry
// reads loadApp performs register this effect as their subscriber, so a
// future registry invalidation re-dirties the effect automatically.
func (c *Coordinator) runCycle(ctx context.Context) error {
	info := c.drainPending()

	if srv, ok := c.drainer.CurrentServer(); ok {
		c.callHook("before_shutdown", func() error {
			if c.hooks.BeforeShutdown == nil {
				return nil
			}
			return c.hooks.BeforeShutdown(srv, info)
		})
		if err := c.drainer.Drain(ctx); err != nil {
			return err
		}
		c.callHook("after_shutdown", func() error {
			if c.hooks.AfterShutdown == nil {
				return nil
			}
			return c.hooks.AfterShutdown(srv, info)
		})
	}

	c.callHook("before_reload", func() error {
		if c.hooks.BeforeReload == nil {
			return nil
		}
		return c.hooks.BeforeReload(info)
	})

	// Extra-watch and force-restart paths are read here so that
	// invalidating one of them dirties this effect and schedules a reload.
	if c.classifier != nil && c.classifier.Registry != nil {
		for p := range c.classifier.ExtraWatchSet {
			c.classifier.Registry.Track(p)
		}
		for p := range c.classifier.ForceRestartSet {
			c.classifier.Registry.Track(p)
		}
	}

	app, err := c.loadApp(ctx)
	if err != nil {
		wrapped := &UserCodeError{Err: err}
		c.stateMu.Lock()
		c.lastErr = wrapped
		c.stateMu.Unlock()
		logging.Error("load_app failed: %v", err)
		return wrapped
	}

	c.stateMu.Lock()
	c.currentApp = app
	c.lastErr = nil
	c.stateMu.Unlock()

	c.callHook("after_reload", func() error {
		if c.hooks.AfterReload == nil {
			return nil
		}
		return c.hooks.AfterReload(app, info)
	})

	select {
	case c.readyCh <- struct{}{}:
	default:
	}
	return nil
}

// App returns the most recently loaded application object, if any.
func (c *Coordinator) App() (any, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.currentApp, c.currentApp != nil
}

// Err returns the error from the most recent failed reload, if any.
func (c *Coordinator) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastErr
}

// Ready signals once per successful reload cycle; the supervisor waits on
// it before creating the next server generation.
func (c *Coordinator) Ready() <-chan struct{} { return c.readyCh }

// Dispose tears down the reload effect.
func (c *Coordinator) Dispose() { c.effect.Dispose() }
