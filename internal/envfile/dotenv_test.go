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
package envfile_test

import (
	"testing"

	"github.com/hotmod-dev/hotmod/internal/envfile"
)

func TestParseBasicKeyValue(t *testing.T) {
	got := envfile.Parse("FOO=bar\nBAZ=qux\n")
	if got["FOO"] != "bar" || got["BAZ"] != "qux" {
		t.Fatalf("got %v", got)
	}
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	got := envfile.Parse("# a comment\n\nFOO=bar\n  # indented comment\n")
	if len(got) != 1 || got["FOO"] != "bar" {
		t.Fatalf("got %v", got)
	}
}

func TestParseStripsExportPrefix(t *testing.T) {
	got := envfile.Parse("export FOO=bar\n")
	if got["FOO"] != "bar" {
		t.Fatalf("got %v", got)
	}
}

func TestParseRejectsInvalidKeys(t *testing.T) {
	got := envfile.Parse("1FOO=bar\nFOO-BAR=baz\nOK=yes\n")
	if len(got) != 1 || got["OK"] != "yes" {
		t.Fatalf("got %v", got)
	}
}

func TestParseUnquotedTrailingCommentStripped(t *testing.T) {
	got := envfile.Parse("FOO=bar # trailing comment\n")
	if got["FOO"] != "bar" {
		t.Fatalf("got %q", got["FOO"])
	}
}

func TestParseUnquotedHashWithoutLeadingSpaceIsLiteral(t *testing.T) {
	got := envfile.Parse("FOO=bar#baz\n")
	if got["FOO"] != "bar#baz" {
		t.Fatalf("got %q, want literal bar#baz", got["FOO"])
	}
}

func TestParseDoubleQuotedEscapes(t *testing.T) {
	got := envfile.Parse(`FOO="line1\nline2\t\"quoted\""` + "\n")
	want := "line1\nline2\t\"quoted\""
	if got["FOO"] != want {
		t.Fatalf("got %q, want %q", got["FOO"], want)
	}
}

func TestParseSingleQuotedPreservesHash(t *testing.T) {
	got := envfile.Parse(`FOO='literal # not a comment'` + "\n")
	if got["FOO"] != "literal # not a comment" {
		t.Fatalf("got %q", got["FOO"])
	}
}

func TestParseLineWithoutEqualsIsIgnored(t *testing.T) {
	got := envfile.Parse("NOTANASSIGNMENT\nFOO=bar\n")
	if len(got) != 1 || got["FOO"] != "bar" {
		t.Fatalf("got %v", got)
	}
}
