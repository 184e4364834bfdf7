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
package envfile

import (
	"os"

	"github.com/hotmod-dev/hotmod/internal/logging"
)

// Manager loads an env file and applies its values to the process
// environment, remembering what each key held before it was first
// overridden so a later removal restores it instead of clearing it.
// Ported from mcp_hmr.py's _EnvironmentManager.
type Manager struct {
	path     string
	baseline map[string]*string // nil means "was unset"
	current  map[string]string
}

// NewManager constructs a manager bound to path. Nothing is read or
// applied until LoadAndApply is called.
func NewManager(path string) *Manager {
	return &Manager{
		path:     path,
		baseline: map[string]*string{},
		current:  map[string]string{},
	}
}

// LoadAndApply reads the env file, diffs it against the previously applied
// mapping, and updates os.Environ accordingly: removed keys are restored to
// their pre-override value (or unset if there wasn't one), added/changed
// keys are set to their new value. reason is used only for the log line.
// Returns true if applying the file changed any environment variable.
func (m *Manager) LoadAndApply(reason string) bool {
	content, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warning("environment file not found: %s", m.path)
		} else {
			logging.Warning("failed to read environment file %s (%v)", m.path, err)
		}
		return false
	}

	mapping := Parse(string(content))
	if mapsEqual(mapping, m.current) {
		return false
	}

	removed, added, changed := diffKeys(m.current, mapping)

	for key := range removed {
		if original, ok := m.baseline[key]; ok && original != nil {
			os.Setenv(key, *original)
		} else {
			os.Unsetenv(key)
		}
	}

	for key, value := range mapping {
		if _, tracked := m.baseline[key]; !tracked {
			if prev, ok := os.LookupEnv(key); ok {
				m.baseline[key] = &prev
			} else {
				m.baseline[key] = nil
			}
		}
		os.Setenv(key, value)
	}

	m.current = mapping

	logging.Info("loaded environment file (%s): %s (vars=%d, changed=%d, added=%d, removed=%d)",
		reason, m.path, len(mapping), len(changed), len(added), len(removed))
	return true
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func diffKeys(prev, next map[string]string) (removed, added, changed map[string]struct{}) {
	removed, added, changed = map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for k := range prev {
		if _, ok := next[k]; !ok {
			removed[k] = struct{}{}
		}
	}
	for k, v := range next {
		pv, ok := prev[k]
		if !ok {
			added[k] = struct{}{}
			continue
		}
		if pv != v {
			changed[k] = struct{}{}
		}
	}
	return removed, added, changed
}
