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

// Package inject is the HTML injection middleware from spec §6: it
// captures an HTML response and appends a small script tag that connects
// to the refresh endpoint and reloads the page on signal. Ported from
// teacher's serve/middleware/inject/{inject,html}.go (response recording,
// DOM-aware injection with a string-replace fallback) and cross-checked
// against original_source's hmr_reloader/wsgi.py
// wsgi_html_injection_middleware for the should-inject rule: only GET
// requests, only identity content-encoding, only html content-type, and
// never the reloader's own endpoint.
package inject

import (
	"net/http"
	"strings"
)

// New builds middleware that injects a client script tag referencing
// scriptPath into HTML responses, skipping the refresh endpoint itself
// (reloaderPath) so the injected script's own request isn't rewritten.
func New(reloaderPath, scriptPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path == reloaderPath {
				next.ServeHTTP(w, r)
				return
			}

			rec := newResponseRecorder()
			next.ServeHTTP(rec, r)

			if !shouldInject(rec.Header()) {
				writeThrough(w, rec)
				return
			}

			script := `<script type="module" src="` + scriptPath + `"></script>`
			injected := injectScript(string(rec.body), script)

			copyHeaders(w.Header(), rec.Header(), "Content-Length", "Transfer-Encoding")
			if rec.Header().Get("Content-Type") == "" {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
			}
			w.WriteHeader(rec.statusCode)
			_, _ = w.Write([]byte(injected))
		})
	}
}

// shouldInject mirrors wsgi_html_injection_middleware's rule: inject only
// into uncompressed HTML responses.
func shouldInject(h http.Header) bool {
	contentType := strings.ToLower(h.Get("Content-Type"))
	encoding := strings.ToLower(h.Get("Content-Encoding"))
	if encoding == "" {
		encoding = "identity"
	}
	return strings.Contains(contentType, "html") && encoding == "identity"
}

func writeThrough(w http.ResponseWriter, rec *responseRecorder) {
	copyHeaders(w.Header(), rec.Header())
	w.WriteHeader(rec.statusCode)
	_, _ = w.Write(rec.body)
}

func copyHeaders(dst, src http.Header, exclude ...string) {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	for k, vs := range src {
		if skip[k] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// responseRecorder captures a downstream handler's response so the
// middleware can rewrite the body before it reaches the client.
type responseRecorder struct {
	header        http.Header
	body          []byte
	statusCode    int
	headerWritten bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: http.Header{}, statusCode: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	r.body = append(r.body, b...)
	return len(b), nil
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.headerWritten {
		r.statusCode = statusCode
		r.headerWritten = true
	}
}

var _ http.ResponseWriter = (*responseRecorder)(nil)
