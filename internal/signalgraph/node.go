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

// state is the tri-state (plus computing) lifecycle of a derivation or
// effect. Ordered so that state comparisons double as "at least as stale as".
type state int

const (
	clean state = iota
	check
	dirty
	computing
)

// node is the common shape shared by signals, derivations, and effects so
// that dirty propagation can walk the graph without knowing the concrete
// type at each hop.
type node interface {
	getState() state
	setState(state)
	subscribers() []reaction
	// resolve brings the node up to date, recomputing only if necessary.
	resolve()
}

// propagateDirty marks each subscriber in subs dirty (its own read of a
// changed upstream value is certain) and propagates "check" further
// downstream, since a subscriber's subscribers might not ultimately see a
// changed value.
func propagateDirty(subs []reaction) {
	for _, s := range subs {
		switch s.getState() {
		case clean, check:
			s.setState(dirty)
			propagateCheck(s.subscribers())
			if e, ok := s.(effectRunner); ok {
				e.runIfDirty()
			}
		case dirty, computing:
			// already at least as stale; nothing more to propagate from here
		}
	}
}

// propagateCheck marks clean subscribers "check" (maybe-stale) and recurses;
// nodes already at check/dirty/computing have already had this subtree
// visited by a prior edge.
func propagateCheck(subs []reaction) {
	for _, s := range subs {
		if s.getState() == clean {
			s.setState(check)
			propagateCheck(s.subscribers())
		}
	}
}

// effectRunner is implemented by Effect and AsyncEffect so propagateDirty can
// trigger the "always eagerly re-executed when dirty" rule without an import
// cycle between node.go and effect.go.
type effectRunner interface {
	runIfDirty()
}
