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
package refresh_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hotmod-dev/hotmod/internal/refresh"
)

func TestHeadReturns202(t *testing.T) {
	h := refresh.NewHandler(refresh.NewHub(), 0)
	req := httptest.NewRequest(http.MethodHead, refresh.DefaultPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202", rec.Code)
	}
}

func TestUnsupportedMethodReturns405(t *testing.T) {
	h := refresh.NewHandler(refresh.NewHub(), 0)
	req := httptest.NewRequest(http.MethodPost, refresh.DefaultPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got %d, want 405", rec.Code)
	}
}

func TestStreamEmitsWaitThenReloadLine(t *testing.T) {
	hub := refresh.NewHub()
	h := refresh.NewHandler(hub, 50*time.Millisecond)

	server := httptest.NewServer(h)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("got %d, want 201", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	first, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if first != "0\n" {
		t.Fatalf("got %q, want \"0\\n\"", first)
	}

	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	hub.Broadcast(refresh.SignalReload)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "1\n" {
			break
		}
		if line != "0\n" {
			t.Fatalf("got unexpected line %q", line)
		}
	}
}

func TestBroadcastSkipsSubscriberWithFullBuffer(t *testing.T) {
	hub := refresh.NewHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.Broadcast(refresh.SignalReload)
	hub.Broadcast(refresh.SignalReload) // second broadcast must not block

	select {
	case v := <-ch:
		if v != refresh.SignalReload {
			t.Fatalf("got %d, want %d", v, refresh.SignalReload)
		}
	default:
		t.Fatal("expected a buffered signal")
	}
}
