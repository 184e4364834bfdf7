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
package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hotmod-dev/hotmod/internal/platform"
	"github.com/hotmod-dev/hotmod/internal/reload"
	"github.com/hotmod-dev/hotmod/internal/supervisor"
)

// fakeReloader is a minimal supervisor.Reloader a test drives by hand,
// standing in for *reload.Coordinator.
type fakeReloader struct {
	readyCh chan struct{}
	mu      sync.Mutex
	app     any
	hasApp  bool
}

func newFakeReloader() *fakeReloader {
	return &fakeReloader{readyCh: make(chan struct{}, 1)}
}

func (f *fakeReloader) Ready() <-chan struct{} { return f.readyCh }

func (f *fakeReloader) App() (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.app, f.hasApp
}

func (f *fakeReloader) publish(app any) {
	f.mu.Lock()
	f.app, f.hasApp = app, true
	f.mu.Unlock()
	select {
	case f.readyCh <- struct{}{}:
	default:
	}
}

// fakeServer tracks whether it is currently "in serve()" so tests can catch
// two generations overlapping.
type fakeServer struct {
	name     string
	exitCh   chan struct{}
	onServe  func()
	serveErr error
}

func newFakeServer(name string) *fakeServer {
	return &fakeServer{name: name, exitCh: make(chan struct{})}
}

func (s *fakeServer) Serve(ctx context.Context) error {
	if s.onServe != nil {
		s.onServe()
	}
	select {
	case <-s.exitCh:
		return s.serveErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeServer) RequestExit() {
	select {
	case <-s.exitCh:
	default:
		close(s.exitCh)
	}
}

func TestServersAreSerializedNeverOverlapping(t *testing.T) {
	reloader := newFakeReloader()

	var inServe int32
	var overlapDetected int32
	var created []*fakeServer
	var createdMu sync.Mutex

	makeServer := func(ctx context.Context, app supervisor.App) (supervisor.Server, error) {
		name := app.(string)
		srv := newFakeServer(name)
		srv.onServe = func() {
			if atomic.AddInt32(&inServe, 1) != 1 {
				atomic.StoreInt32(&overlapDetected, 1)
			}
			defer atomic.AddInt32(&inServe, -1)
			// Simulate the server doing work for a bit before exit is
			// requested, giving a racing second generation a window to
			// start concurrently if serialization were broken.
			time.Sleep(20 * time.Millisecond)
		}
		createdMu.Lock()
		created = append(created, srv)
		createdMu.Unlock()
		return srv, nil
	}

	sup := supervisor.New(reloader, makeServer, reload.Hooks{}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	reloader.publish("gen-1")
	time.Sleep(5 * time.Millisecond)

	srv, ok := sup.CurrentServer()
	if !ok || srv.(*fakeServer).name != "gen-1" {
		t.Fatalf("CurrentServer = %v, %v; want gen-1 server", srv, ok)
	}

	// Drain the first generation and immediately publish the next: the
	// supervisor must not start gen-2 until gen-1's Serve has returned.
	if err := sup.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	reloader.publish("gen-2")
	time.Sleep(30 * time.Millisecond)

	if atomic.LoadInt32(&overlapDetected) != 0 {
		t.Fatal("two server generations were in Serve() concurrently")
	}

	srv2, ok := sup.CurrentServer()
	if !ok || srv2.(*fakeServer).name != "gen-2" {
		t.Fatalf("CurrentServer = %v, %v; want gen-2 server", srv2, ok)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestServerErrorTearsDownGenerationAndWaitsForNextReload(t *testing.T) {
	reloader := newFakeReloader()

	boom := errors.New("boom")
	var callCount int32

	makeServer := func(ctx context.Context, app supervisor.App) (supervisor.Server, error) {
		n := atomic.AddInt32(&callCount, 1)
		srv := newFakeServer(app.(string))
		if n == 1 {
			srv.serveErr = boom
			close(srv.exitCh) // Serve returns immediately with an error
		}
		return srv, nil
	}

	sup := supervisor.New(reloader, makeServer, reload.Hooks{}, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	reloader.publish("gen-1")
	time.Sleep(20 * time.Millisecond)

	if _, ok := sup.CurrentServer(); ok {
		t.Fatal("expected no current server after the generation errored out")
	}

	reloader.publish("gen-2")
	time.Sleep(20 * time.Millisecond)

	srv, ok := sup.CurrentServer()
	if !ok || srv.(*fakeServer).name != "gen-2" {
		t.Fatalf("CurrentServer = %v, %v; want gen-2 running after recovery", srv, ok)
	}

	cancel()
	<-done
}

func TestOnServerCreatedAndStoppedHooksFire(t *testing.T) {
	reloader := newFakeReloader()

	var mu sync.Mutex
	var order []string

	makeServer := func(ctx context.Context, app supervisor.App) (supervisor.Server, error) {
		return newFakeServer(app.(string)), nil
	}

	hooks := reload.Hooks{
		OnServerCreated: func(server any) error {
			mu.Lock()
			order = append(order, "created")
			mu.Unlock()
			return nil
		},
		OnServerStopped: func(server any) error {
			mu.Lock()
			order = append(order, "stopped")
			mu.Unlock()
			return nil
		},
	}

	sup := supervisor.New(reloader, makeServer, hooks, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	reloader.publish("gen-1")
	time.Sleep(10 * time.Millisecond)

	if err := sup.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "created" || order[1] != "stopped" {
		t.Fatalf("got hook order %v, want [created stopped]", order)
	}
}

// TestRestartCooldownDelaysNextGenerationViaMockTime exercises the restart
// cooldown (S5) through a platform.MockTimeProvider so the delay is
// observed by the provider's Sleep() bookkeeping instead of a real wall
// clock wait.
func TestRestartCooldownDelaysNextGenerationViaMockTime(t *testing.T) {
	reloader := newFakeReloader()

	makeServer := func(ctx context.Context, app supervisor.App) (supervisor.Server, error) {
		return newFakeServer(app.(string)), nil
	}

	mockTime := platform.NewMockTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cooldown := 500 * time.Millisecond
	sup := supervisor.New(reloader, makeServer, reload.Hooks{}, cooldown, mockTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	reloader.publish("gen-1")
	time.Sleep(20 * time.Millisecond)

	if err := sup.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	reloader.publish("gen-2")

	deadline := time.After(2 * time.Second)
	for {
		srv, ok := sup.CurrentServer()
		if ok && srv.(*fakeServer).name == "gen-2" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("gen-2 never started")
		case <-time.After(time.Millisecond):
		}
	}

	found := false
	for _, d := range mockTime.GetSleepCalls() {
		if d == cooldown {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("cooldown never honored via the mock time provider, got sleep calls %v", mockTime.GetSleepCalls())
	}

	cancel()
	<-done
}
