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
	"path/filepath"

	"github.com/hotmod-dev/hotmod/internal/reactivemod"
	"github.com/hotmod-dev/hotmod/internal/watch"
)

// Classifier knows how to bucket a batch's changed paths the way spec
// §4.4 requires, ported from hmr_runner.py's Reloader.on_changes.
type Classifier struct {
	Registry        *reactivemod.Registry
	ExtraWatchSet   map[string]struct{}
	ForceRestartSet map[string]struct{}
	AssetSpec       *watch.AssetSpec
	Cwd             string
	RefreshEnabled  bool
}

// Classification holds the five hit-sets from spec §4.4.
type Classification struct {
	CodeHits         map[string]struct{}
	TrackedHits      map[string]struct{}
	ExtraHits        map[string]struct{}
	AssetHits        map[string]struct{}
	ForceRestartHits map[string]struct{}
}

// Classify applies the five classification rules to paths.
func (c *Classifier) Classify(paths []string) Classification {
	cl := Classification{
		CodeHits:         map[string]struct{}{},
		TrackedHits:      map[string]struct{}{},
		ExtraHits:        map[string]struct{}{},
		AssetHits:        map[string]struct{}{},
		ForceRestartHits: map[string]struct{}{},
	}

	for _, p := range paths {
		if c.Registry != nil && c.Registry.IsCodePath(p) {
			cl.CodeHits[p] = struct{}{}
		}
		if c.Registry != nil && c.Registry.IsTrackedPath(p) {
			cl.TrackedHits[p] = struct{}{}
		}
		if _, ok := c.ExtraWatchSet[p]; ok {
			cl.ExtraHits[p] = struct{}{}
		}
		if c.RefreshEnabled && c.AssetSpec != nil {
			cwdRel, err := filepath.Rel(c.Cwd, p)
			if err != nil {
				cwdRel = p
			}
			if c.AssetSpec.Matches(p, cwdRel) {
				cl.AssetHits[p] = struct{}{}
			}
		}
		if _, ok := c.ForceRestartSet[p]; ok {
			if _, extra := cl.ExtraHits[p]; extra {
				cl.ForceRestartHits[p] = struct{}{}
			}
		}
	}

	return cl
}

// decision is the outcome of applying spec §4.4's decision rule to a
// Classification: either an asset-only refresh, or a restart with the
// union of relevant files/reasons.
type decision struct {
	assetOnly bool
	info      ReloadInfo
}

// decide ports hmr_runner.py's restart_tracked_hits/restart_extra_hits/
// asset-only logic: force-restart paths always win even if they are also
// asset hits, and a batch containing nothing but asset hits (plus
// non-forced tracked/extra hits subtracted out) takes the refresh path.
func (cl Classification) decide() decision {
	restartTracked := subtract(cl.TrackedHits, cl.AssetHits)
	restartExtra := union(subtract(cl.ExtraHits, cl.AssetHits), cl.ForceRestartHits)

	noHits := len(cl.CodeHits) == 0 && len(cl.TrackedHits) == 0 &&
		len(cl.ExtraHits) == 0 && len(cl.AssetHits) == 0
	if noHits {
		return decision{}
	}

	if len(cl.CodeHits) == 0 && len(restartTracked) == 0 && len(restartExtra) == 0 && len(cl.AssetHits) > 0 {
		info := newReloadInfo()
		for f := range cl.AssetHits {
			info.Files[f] = struct{}{}
		}
		info.Reasons[ReasonAssetRefresh] = struct{}{}
		return decision{assetOnly: true, info: info}
	}

	info := newReloadInfo()
	for f := range cl.CodeHits {
		info.Files[f] = struct{}{}
	}
	for f := range restartTracked {
		info.Files[f] = struct{}{}
	}
	for f := range restartExtra {
		info.Files[f] = struct{}{}
	}
	for f := range cl.AssetHits {
		info.Files[f] = struct{}{}
	}

	if len(cl.CodeHits) > 0 {
		info.Reasons[ReasonCode] = struct{}{}
	}
	if len(restartTracked) > 0 {
		info.Reasons[ReasonTrackedFile] = struct{}{}
	}
	if len(restartExtra) > 0 {
		info.Reasons[ReasonExtraWatchFile] = struct{}{}
	}
	if len(cl.AssetHits) > 0 {
		// Per spec §9's open-question resolution: asset+code in the same
		// batch restarts and records "assets changed" as a reason too,
		// but does not additionally emit the browser-refresh signal.
		info.Reasons[ReasonAssetRefresh] = struct{}{}
	}

	return decision{info: info}
}

func subtract(a, b map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range a {
		if _, excluded := b[k]; !excluded {
			out[k] = struct{}{}
		}
	}
	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
