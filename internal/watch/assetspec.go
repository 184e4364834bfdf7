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
package watch

import (
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"
)

// pattern is a single compiled include/exclude entry (spec §6 "Glob & path
// semantics"): a pattern containing any of `* ? [` is a glob matched against
// the file's absolute or cwd-relative posix path (absolute iff the pattern
// itself starts absolute); otherwise it is a literal path, where a literal
// ending with `/` or bearing no suffix denotes a directory root whose
// descendants all match.
type pattern struct {
	raw        string
	isGlob     bool
	isAbsolute bool
	isDirRoot  bool
}

func compilePattern(raw string) pattern {
	p := pattern{raw: raw, isGlob: isGlobLike(raw)}
	p.isAbsolute = filepath.IsAbs(raw)
	if !p.isGlob {
		p.isDirRoot = strings.HasSuffix(raw, "/") || filepath.Ext(raw) == ""
	}
	return p
}

func isGlobLike(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func (p pattern) matches(absPath, cwdRelPath string) bool {
	candidate := cwdRelPath
	if p.isAbsolute {
		candidate = absPath
	}
	candidate = filepath.ToSlash(candidate)
	raw := filepath.ToSlash(p.raw)

	if p.isGlob {
		ok, err := doublestar.Match(raw, candidate)
		return err == nil && ok
	}

	trimmed := strings.TrimSuffix(raw, "/")
	if p.isDirRoot {
		return candidate == trimmed || strings.HasPrefix(candidate, trimmed+"/")
	}
	return candidate == trimmed
}

// AssetSpec is a compiled include/exclude asset-refresh specification (spec
// §4.4 asset_hits / §6 glob semantics), ported from
// original_source/packages/hmr-runner/hmr_runner.py's
// `_compile_asset_spec`/`_CompiledAssetSpec`.
type AssetSpec struct {
	include        []pattern
	exclude        []pattern
	sourceSuffixes []string
}

// CompileAssetSpec compiles include/exclude glob-or-literal patterns.
// sourceSuffixes lists file suffixes (e.g. ".go") that never satisfy the
// asset predicate even if they match an include pattern, per spec §4.4 rule
// 4 ("asset_hits... not ending in the source-code suffix").
func CompileAssetSpec(include, exclude, sourceSuffixes []string) *AssetSpec {
	s := &AssetSpec{sourceSuffixes: sourceSuffixes}
	for _, raw := range include {
		s.include = append(s.include, compilePattern(raw))
	}
	for _, raw := range exclude {
		s.exclude = append(s.exclude, compilePattern(raw))
	}
	return s
}

// Matches reports whether path (given as both its absolute and
// cwd-relative posix forms) satisfies the asset-refresh spec: it matches at
// least one include pattern, matches no exclude pattern, and does not end
// in a source-code suffix.
func (s *AssetSpec) Matches(absPath, cwdRelPath string) bool {
	if s == nil || len(s.include) == 0 {
		return false
	}
	for _, suffix := range s.sourceSuffixes {
		if strings.HasSuffix(absPath, suffix) {
			return false
		}
	}

	matched := false
	for _, inc := range s.include {
		if inc.matches(absPath, cwdRelPath) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range s.exclude {
		if exc.matches(absPath, cwdRelPath) {
			return false
		}
	}
	return true
}
