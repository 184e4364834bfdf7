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
package slug_test

import (
	"testing"

	"github.com/hotmod-dev/hotmod/internal/slug"
)

func TestParseValidSlug(t *testing.T) {
	s, err := slug.Parse("./public:app")
	if err != nil {
		t.Fatal(err)
	}
	if s.Path != "./public" || s.Attr != "app" {
		t.Fatalf("got %+v", s)
	}
}

func TestParseMissingColonIsError(t *testing.T) {
	if _, err := slug.Parse("no-colon-here"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParseInvalidAttrIsError(t *testing.T) {
	if _, err := slug.Parse("./public:123bad"); err == nil {
		t.Fatal("expected an error for a non-identifier attr")
	}
}

func TestParseEmptyPathIsError(t *testing.T) {
	if _, err := slug.Parse(":app"); err == nil {
		t.Fatal("expected an error for an empty module/path")
	}
}

func TestParseDottedModuleSlug(t *testing.T) {
	s, err := slug.Parse("mypkg.mymodule:create_app")
	if err != nil {
		t.Fatal(err)
	}
	if s.Path != "mypkg.mymodule" || s.Attr != "create_app" {
		t.Fatalf("got %+v", s)
	}
}
