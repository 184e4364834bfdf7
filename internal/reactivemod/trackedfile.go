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

import (
	"sync"

	"github.com/hotmod-dev/hotmod/internal/platform"
	"github.com/hotmod-dev/hotmod/internal/signalgraph"
)

// TrackedFile is spec §3's "Tracked file": a non-code file whose contents
// are read through the signal graph, so a derivation that reads it picks up
// a dependency and is dirtied when the file is rewritten. Backed by
// platform.FileSystem so tests can substitute an in-memory filesystem.
type TrackedFile struct {
	path string
	fs   platform.FileSystem

	mu      sync.Mutex
	loaded  bool
	content *signalgraph.Signal[string]
	loadErr error
}

// NewTrackedFile constructs a standalone tracked file, not registered with
// any Registry. Most callers should use Registry.File instead so the file
// participates in Registry.Invalidate's fs-signal index.
func NewTrackedFile(fsys platform.FileSystem, path string) *TrackedFile {
	return newTrackedFile(fsys, path)
}

func newTrackedFile(fsys platform.FileSystem, path string) *TrackedFile {
	return &TrackedFile{path: path, fs: fsys, content: signalgraph.NewSignal("")}
}

// Read returns the file's current contents, reading it from disk on first
// call. Registers a dependency on the currently active reaction.
func (f *TrackedFile) Read() (string, error) {
	f.mu.Lock()
	if !f.loaded {
		f.loadLocked()
	}
	err := f.loadErr
	f.mu.Unlock()

	content := f.content.Get()
	return content, err
}

func (f *TrackedFile) loadLocked() {
	data, err := f.fs.ReadFile(f.path)
	f.loaded = true
	f.loadErr = err
	if err == nil {
		f.content.Set(string(data))
	}
}

// Invalidate re-reads the file from disk and dirties subscribers iff the
// contents actually changed (Signal.Set's equality check, per spec
// invariant 2).
func (f *TrackedFile) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked()
}

// Path returns the tracked file's path.
func (f *TrackedFile) Path() string { return f.path }

// invalidate satisfies the registry's invalidator interface.
func (f *TrackedFile) invalidate() { f.Invalidate() }

// hasSubscribers reports whether any reaction currently reads this file's
// contents.
func (f *TrackedFile) hasSubscribers() bool {
	return f.content.HasSubscribers()
}
