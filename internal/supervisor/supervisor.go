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

// Package supervisor is the server lifecycle supervisor (C5): it runs the
// user's server in a supervised loop, coordinating shutdown of the
// outgoing generation with startup of the next. Ported in spirit from
// original_source/packages/hmr-runner/hmr_runner.py's outer `while
// need_restart` loop, translated from asyncio Events to Go channels.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hotmod-dev/hotmod/internal/logging"
	"github.com/hotmod-dev/hotmod/internal/platform"
	"github.com/hotmod-dev/hotmod/internal/reload"
)

// App is the user's application object, produced by the reload coordinator
// and opaque to the supervisor.
type App any

// Server is the boundary interface a concrete network server (HTTP, WSGI,
// MCP-stdio, ...) must satisfy (spec §4.5 / §6, out of scope to implement
// beyond this shape).
type Server interface {
	// Serve runs until shutdown is requested (via RequestExit) or ctx is
	// canceled, then returns.
	Serve(ctx context.Context) error
	// RequestExit asks Serve to return as soon as possible.
	RequestExit()
}

// MakeServerFunc builds a new Server bound to app (spec §6 `make_server`).
type MakeServerFunc func(ctx context.Context, app App) (Server, error)

// Reloader is the subset of *reload.Coordinator the supervisor depends on.
// Declaring it as an interface keeps internal/supervisor free of a direct
// dependency on internal/reload's effect machinery.
type Reloader interface {
	Ready() <-chan struct{}
	App() (any, bool)
}

// generation is spec §3's "Server generation": a tuple (generation-id,
// server-object, ready-event, finish-event), modeled here as the server
// plus a finish channel closed exactly once when Serve returns.
type generation struct {
	id     uint64
	server Server
	finish chan struct{}
}

// Supervisor runs the main loop described in spec §4.5.
type Supervisor struct {
	reloader     Reloader
	makeServer   MakeServerFunc
	hooks        reload.Hooks
	cooldown     time.Duration
	timeProvider platform.TimeProvider

	mu           sync.Mutex
	current      *generation
	nextID       uint64
	lastStart    time.Time
	hasLastStart bool
}

// New constructs a supervisor. hooks.OnServerCreated/OnServerStopped are
// the only two hook fields the supervisor itself invokes; the rest belong
// to the reload coordinator. timeProvider backs the restart cooldown
// (honorCooldown); a nil timeProvider defaults to platform.RealTimeProvider,
// and tests can inject a platform.MockTimeProvider to exercise the cooldown
// (S5) without real sleeps.
func New(reloader Reloader, makeServer MakeServerFunc, hooks reload.Hooks, cooldown time.Duration, timeProvider platform.TimeProvider) *Supervisor {
	if timeProvider == nil {
		timeProvider = platform.NewRealTimeProvider()
	}
	return &Supervisor{
		reloader:     reloader,
		makeServer:   makeServer,
		hooks:        hooks,
		cooldown:     cooldown,
		timeProvider: timeProvider,
	}
}

// CurrentServer implements reload.Drainer so a *reload.Coordinator can
// drive this supervisor's generation directly.
func (s *Supervisor) CurrentServer() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.server, true
}

// Drain implements reload.Drainer: it requests the current generation
// exit and blocks until Run has observed Serve returning for it.
func (s *Supervisor) Drain(ctx context.Context) error {
	s.mu.Lock()
	gen := s.current
	s.mu.Unlock()
	if gen == nil {
		return nil
	}
	gen.server.RequestExit()
	select {
	case <-gen.finish:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the main loop from spec §4.5: it waits for the reloader to
// produce an application, honors the restart cooldown, creates a new
// server generation, and serves it to completion before looping. It
// returns when ctx is canceled (a user interrupt, translated upstream)
// or make_server fails; a server's own Serve error is logged and the loop
// waits for the next reload.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-s.reloader.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}

		app, ok := s.reloader.App()
		if !ok {
			continue
		}

		if err := s.honorCooldown(ctx); err != nil {
			return err
		}

		srv, err := s.makeServer(ctx, app)
		if err != nil {
			return fmt.Errorf("make_server: %w", err)
		}

		gen := &generation{server: srv, finish: make(chan struct{})}
		s.mu.Lock()
		s.nextID++
		gen.id = s.nextID
		s.current = gen
		s.lastStart = s.timeProvider.Now()
		s.hasLastStart = true
		s.mu.Unlock()

		s.callHook("on_server_created", func() error {
			if s.hooks.OnServerCreated == nil {
				return nil
			}
			return s.hooks.OnServerCreated(srv)
		})

		serveErr := srv.Serve(ctx)

		close(gen.finish)
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()

		s.callHook("on_server_stopped", func() error {
			if s.hooks.OnServerStopped == nil {
				return nil
			}
			return s.hooks.OnServerStopped(srv)
		})

		if serveErr != nil {
			if errors.Is(serveErr, context.Canceled) {
				return serveErr
			}
			logging.Error("server error: %v", serveErr)
			// spec §7: a server error tears the generation down and the
			// supervisor loops back to wait for the next reload.
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) honorCooldown(ctx context.Context) error {
	if s.cooldown <= 0 {
		return nil
	}
	s.mu.Lock()
	last, has := s.lastStart, s.hasLastStart
	s.mu.Unlock()
	if !has {
		return nil
	}
	wait := last.Add(s.cooldown).Sub(s.timeProvider.Now())
	if wait <= 0 {
		return nil
	}
	select {
	case <-s.timeProvider.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) callHook(name string, fn func() error) {
	if err := fn(); err != nil {
		logging.Error("hook %q failed: %v", name, err)
	}
}
