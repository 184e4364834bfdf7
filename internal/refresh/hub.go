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

// Package refresh implements the browser-refresh protocol (spec §6): a
// broadcast hub plus the HTTP handler subscribers poll/stream against.
// Ported from original_source/packages/hmr-reloader/hmr_reloader/_hub.go
// and .../fastapi-reloader/fastapi_reloader/core.py, with the
// connection-bookkeeping pattern (register-on-connect,
// snapshot-then-broadcast-without-holding-the-lock) adapted from teacher's
// serve/websocket.go websocketManager.
package refresh

import "sync"

// Signal values mirror the wire protocol: 0 means "still waiting", 1 means
// "reload now".
const (
	SignalWait   = 0
	SignalReload = 1
)

// Hub is a broadcast hub keyed by subscriber id, delivering at most one
// reload signal per subscriber per generation (each subscriber's channel
// holds a single buffered slot; a reload that arrives while one is already
// pending is coalesced, matching the at-most-once delivery the streaming
// handler expects).
type Hub struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]chan int
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: map[uint64]chan int{}}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function the caller must invoke when it stops listening.
func (h *Hub) Subscribe() (<-chan int, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan int, 1)
	h.subscribers[id] = ch
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

// Broadcast delivers value to every current subscriber without blocking:
// a subscriber whose buffer is already full (it has not yet drained the
// previous signal) is skipped rather than stalling the broadcaster.
func (h *Hub) Broadcast(value int) {
	h.mu.Lock()
	snapshot := make([]chan int, 0, len(h.subscribers))
	for _, ch := range h.subscribers {
		snapshot = append(snapshot, ch)
	}
	h.mu.Unlock()

	for _, ch := range snapshot {
		select {
		case ch <- value:
		default:
		}
	}
}

// SubscriberCount reports the number of currently subscribed listeners.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
