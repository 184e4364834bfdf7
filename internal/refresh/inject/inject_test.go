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
package inject_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hotmod-dev/hotmod/internal/refresh/inject"
)

func htmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func TestInjectsScriptIntoHead(t *testing.T) {
	mw := inject.New("/---fastapi-reloader---", "/___reload.js")
	handler := mw(htmlHandler("<html><head><title>t</title></head><body>hi</body></html>"))

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `src="/___reload.js"`) {
		t.Fatalf("body missing injected script: %s", rec.Body.String())
	}
}

func TestSkipsNonHTMLResponses(t *testing.T) {
	mw := inject.New("/---fastapi-reloader---", "/___reload.js")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "script") {
		t.Fatalf("should not have injected into JSON response: %s", rec.Body.String())
	}
}

func TestSkipsReloaderEndpointItself(t *testing.T) {
	var called bool
	mw := inject.New("/---fastapi-reloader---", "/___reload.js")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/---fastapi-reloader---", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("downstream handler should still run")
	}
	if strings.Contains(rec.Body.String(), "script") {
		t.Fatalf("reloader's own endpoint must not be rewritten: %s", rec.Body.String())
	}
}

func TestSkipsCompressedResponses(t *testing.T) {
	mw := inject.New("/---fastapi-reloader---", "/___reload.js")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("<html></html>"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "script") {
		t.Fatal("must not inject into a compressed response body")
	}
}

func TestFallbackInjectsBeforeBodyWhenNoHead(t *testing.T) {
	mw := inject.New("/---fastapi-reloader---", "/___reload.js")
	handler := mw(htmlHandler("<html><body>hi</body></html>"))

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `src="/___reload.js"`) {
		t.Fatalf("body missing injected script: %s", rec.Body.String())
	}
}
