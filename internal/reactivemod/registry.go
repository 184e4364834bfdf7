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

// invalidator is anything Registry.Invalidate can dirty by path: a
// trackedPath or a *TrackedFile.
type invalidator interface {
	invalidate()
	hasSubscribers() bool
}

// Registry is the path→module / module→path index from spec §4.2, plus the
// generic path-tracking signals used for non-code "extra watch" paths (e.g.
// the environment file, or any path the caller wants dirtied without being
// a loadable module).
type Registry struct {
	mu      sync.Mutex
	owner   *signalgraph.Owner
	loader  LoaderFunc
	fs      platform.FileSystem
	modules map[string]*Module
	tracked map[string]invalidator
}

// NewRegistry constructs a registry whose modules and tracked paths live
// under owner's arena; disposing owner tears every node down at once (spec
// §9's "one owning store per graph generation"). fsys backs any
// TrackedFile created through File.
func NewRegistry(owner *signalgraph.Owner, fsys platform.FileSystem, loader LoaderFunc) *Registry {
	return &Registry{
		owner:   owner,
		loader:  loader,
		fs:      fsys,
		modules: make(map[string]*Module),
		tracked: make(map[string]invalidator),
	}
}

// Load returns path's current value, loading it on first call and
// reloading it if it has been invalidated since the last read. Calling
// Load from within a derivation or effect registers a dependency on the
// module the same way reading any other signal does.
func (r *Registry) Load(path string) (any, error) {
	return r.moduleFor(path).resolve()
}

func (r *Registry) moduleFor(path string) *Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[path]
	if !ok {
		m = newModule(r, path)
		r.modules[path] = m
	}
	return m
}

// Track registers path as a dependency of the currently active reaction
// without loading a value through LoaderFunc — this is how tracked files
// (spec §3 "Tracked file") and extra-watch paths (spec §4.4's
// extra_hits/force_restart_hits) participate in the fs-signal index
// without being code modules.
func (r *Registry) Track(path string) {
	r.mu.Lock()
	t, ok := r.tracked[path]
	if !ok {
		t = newTrackedPath()
		r.tracked[path] = t
	}
	r.mu.Unlock()
	t.(*trackedPath).touch()
}

// File returns the TrackedFile for path, creating and registering it into
// the fs-signal index on first call so Invalidate(path) reaches it.
func (r *Registry) File(path string) *TrackedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tracked[path]; ok {
		if tf, ok := existing.(*TrackedFile); ok {
			return tf
		}
	}
	tf := newTrackedFile(r.fs, path)
	r.tracked[path] = tf
	return tf
}

// Invalidate dirties whichever node is indexed under path: a loaded
// module's load-derivation, a tracked path's signal, or both if both
// exist. A path the registry has never seen is a no-op, matching the
// classification rule that only known paths count as code_hits/tracked_hits.
func (r *Registry) Invalidate(path string) {
	r.mu.Lock()
	m, hasModule := r.modules[path]
	t, hasTracked := r.tracked[path]
	r.mu.Unlock()

	if hasModule {
		m.invalidate()
	}
	if hasTracked {
		t.invalidate()
	}
}

// IsCodePath reports whether path has been loaded as a module at least
// once — the "code_hits" classification rule from spec §4.4.
func (r *Registry) IsCodePath(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.modules[path]
	return ok
}

// IsTrackedPath reports whether path has active subscribers in the
// fs-signal index — the "tracked_hits" classification rule from spec §4.4.
// Mere presence in the tracked index is not enough: a path that was touched
// once but has since lost every reader (e.g. the reaction that read it was
// torn down) no longer counts, matching original_source's
// hmr_runner.py:456 check against s.subscribers.
func (r *Registry) IsTrackedPath(path string) bool {
	r.mu.Lock()
	t, ok := r.tracked[path]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return t.hasSubscribers()
}
