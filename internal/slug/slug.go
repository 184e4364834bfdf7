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

// Package slug parses the CLI's `<slug>` positional argument (spec §6):
// `module:attr` or `path:attr`, where attr names the application object
// within the module. Since this is a statically-compiled Go binary rather
// than the original's dynamically-importing host language, there is no
// runtime symbol lookup by string name (no `go build -buildmode=plugin`
// assumption is made here, per process instructions against fabricated
// shims) — Attr instead selects among the small set of app factories the
// host binary registers up front (cmd/root.go's runServe accepts only
// "app"), and Module/Path
// names the filesystem location that factory serves.
package slug

import (
	"fmt"
	"strings"
)

// Slug is the parsed form of `<module-or-path>:<attr>`.
type Slug struct {
	Path string
	Attr string
}

// Parse splits raw on the last ':' and validates Attr against the
// identifier grammar spec §6 implies ("attr names the application object"):
// it must look like a source identifier, [A-Za-z_][A-Za-z0-9_]*.
func Parse(raw string) (Slug, error) {
	idx := strings.LastIndexByte(raw, ':')
	if idx < 0 {
		return Slug{}, fmt.Errorf("invalid slug %q: expected the form module:attr or path:attr", raw)
	}
	path, attr := raw[:idx], raw[idx+1:]
	if path == "" {
		return Slug{}, fmt.Errorf("invalid slug %q: missing module/path before ':'", raw)
	}
	if !isIdentifier(attr) {
		return Slug{}, fmt.Errorf("invalid slug %q: attr %q is not a valid identifier", raw, attr)
	}
	return Slug{Path: path, Attr: attr}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		isAlpha := b == '_' || ('A' <= b && b <= 'Z') || ('a' <= b && b <= 'z')
		isDigit := '0' <= b && b <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if i > 0 && !isAlpha && !isDigit {
			return false
		}
	}
	return true
}
