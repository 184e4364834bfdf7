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

// Package reactivemod is the reactive module registry (C2): it loads source
// units identified by an absolute path under the signal graph so that
// re-executing them on reload is driven by the same dependency-tracking
// machinery as any other derivation.
//
// Go compiles user code ahead of time, so there is no per-attribute
// namespace to intercept the way a dynamic language's import hook can.
// Per spec §9 this degrades dependency granularity from "attribute" to
// "module": a path is tracked and invalidated as a whole, and the loader
// callback supplied by the host re-produces the module's value (typically
// by re-invoking a registered factory function for that path) rather than
// re-executing source text.
package reactivemod

import (
	"errors"
	"sync"

	"github.com/hotmod-dev/hotmod/internal/signalgraph"
)

// LoaderFunc re-produces the value for path. It is invoked once on first
// Load and again every time the module is invalidated and subsequently
// read.
type LoaderFunc func(path string) (any, error)

// Module is a reactive module (spec §3 "Reactive module"): a load-derivation
// wrapping re-invocation of the host's loader, plus the most recently loaded
// value and error.
type Module struct {
	path string

	mu    sync.Mutex
	value any
	err   error

	generation uint64
	load       *signalgraph.Derivation[uint64]
}

func newModule(reg *Registry, path string) *Module {
	m := &Module{path: path}
	m.load = signalgraph.NewDerivation(reg.owner, func() (uint64, error) {
		v, err := reg.loader(path)
		m.mu.Lock()
		m.value, m.err = v, err
		m.generation++
		gen := m.generation
		m.mu.Unlock()
		return gen, err
	})
	return m
}

// resolve loads (or reloads, if dirty) the module and returns its current
// value. A re-entrant load of a module already in the middle of loading —
// signalgraph's cycle detection — is treated per spec §4.2's circular-import
// edge case: the partially populated value is returned without error and
// without establishing a spurious dependency on the caller.
func (m *Module) resolve() (any, error) {
	_, err := m.load.Get()
	if errors.Is(err, signalgraph.ErrCycle) {
		m.mu.Lock()
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.err
}

// invalidate dirties the module's load-derivation so the next read
// re-invokes the loader.
func (m *Module) invalidate() {
	m.load.Invalidate()
}

// Path returns the absolute path this module was loaded from.
func (m *Module) Path() string { return m.path }
