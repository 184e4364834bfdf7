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

// Package envfile loads a dotenv file and applies its values to the process
// environment, restoring whatever was there before on removal. Ported from
// original_source/packages/mcp-hmr/mcp_hmr.py's _parse_dotenv/
// _EnvironmentManager.
package envfile

import "strings"

func isValidKey(key string) bool {
	if key == "" {
		return false
	}
	if !isKeyStartRune(key[0]) {
		return false
	}
	for i := 1; i < len(key); i++ {
		if !isKeyRune(key[i]) {
			return false
		}
	}
	return true
}

func isKeyStartRune(b byte) bool {
	return b == '_' || ('A' <= b && b <= 'Z') || ('a' <= b && b <= 'z')
}

func isKeyRune(b byte) bool {
	return isKeyStartRune(b) || ('0' <= b && b <= '9')
}

// stripUnquotedComment removes a trailing `# comment`, but only treats '#'
// as a comment delimiter when preceded by whitespace (so "a#b" is a literal
// value, not a comment).
func stripUnquotedComment(raw string) string {
	for i := 0; i < len(raw)-1; i++ {
		if isSpace(raw[i]) && raw[i+1] == '#' {
			return strings.TrimRight(raw[:i], " \t\r\n")
		}
	}
	return strings.TrimSpace(raw)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\v' || b == '\f'
}

var quoteEscapes = map[byte]byte{
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'\\': '\\',
	'"':  '"',
	'\'': '\'',
}

func parseQuotedValue(raw string) string {
	quote := raw[0]
	var out strings.Builder
	for i := 1; i < len(raw); i++ {
		ch := raw[i]
		if ch == quote {
			return out.String()
		}
		if ch == '\\' && i+1 < len(raw) {
			i++
			if repl, ok := quoteEscapes[raw[i]]; ok {
				out.WriteByte(repl)
			} else {
				out.WriteByte(raw[i])
			}
			continue
		}
		out.WriteByte(ch)
	}
	return out.String()
}

func parseValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw[0] == '"' || raw[0] == '\'' {
		return parseQuotedValue(raw)
	}
	return stripUnquotedComment(raw)
}

// Parse parses dotenv-format content into a key/value map. Blank lines and
// lines starting with '#' are skipped; a leading "export " is stripped;
// lines without '=' or with an invalid key are ignored.
func Parse(content string) map[string]string {
	env := map[string]string{}
	for _, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if !isValidKey(key) {
			continue
		}
		env[key] = parseValue(line[idx+1:])
	}
	return env
}
