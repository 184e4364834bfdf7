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

// Package devserver is the default make_server implementation (spec §6): a
// minimal static file server with CORS and the browser-refresh endpoint
// wired in, serving as the bundled CLI's example network server and as the
// supervisor.Server this repository ships out of the box. Ported from
// teacher's serve/server_http.go (static file handler, MIME-by-extension,
// path-traversal guard) and serve/server.go's CORS header line, generalized
// from the teacher's WatchDir-scoped instance to a plain root directory.
package devserver

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hotmod-dev/hotmod/internal/logging"
	"github.com/hotmod-dev/hotmod/internal/platform"
	"github.com/hotmod-dev/hotmod/internal/refresh"
	"github.com/hotmod-dev/hotmod/internal/refresh/inject"
)

// Config configures a Server.
type Config struct {
	Addr         string
	Root         string
	FS           platform.FileSystem
	Hub          *refresh.Hub
	InjectHTML   bool
	ScriptPath   string
	PollInterval time.Duration
}

// Server is the default static file devserver. It implements
// supervisor.Server (Serve/RequestExit) without importing internal/supervisor,
// since the interface is structural.
type Server struct {
	cfg    Config
	http   *http.Server
	mu     sync.Mutex
	exited bool
}

// New builds a Server bound to cfg. Call Serve to run it.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.Handle(refresh.DefaultPath, refresh.NewHandler(cfg.Hub, cfg.PollInterval))
	mux.HandleFunc("/", s.serveStaticFiles)

	var handler http.Handler = mux
	handler = corsMiddleware(handler)
	if cfg.InjectHTML {
		scriptPath := cfg.ScriptPath
		if scriptPath == "" {
			scriptPath = "/___hotmod_reload_client.js"
		}
		handler = inject.New(refresh.DefaultPath, scriptPath)(handler)
		mux.HandleFunc(scriptPath, serveReloadClientScript)
	}

	s.http = &http.Server{Addr: cfg.Addr, Handler: handler}
	return s
}

// corsMiddleware sets a permissive Access-Control-Allow-Origin header,
// matching teacher's dev-mode CORS behavior (serve/server.go).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the server's root http.Handler, primarily for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Serve implements supervisor.Server: it listens until RequestExit is
// called or ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		_ = s.http.Shutdown(context.Background())
		return ctx.Err()
	}
}

// RequestExit implements supervisor.Server.
func (s *Server) RequestExit() {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.exited = true
	s.mu.Unlock()
	_ = s.http.Shutdown(context.Background())
}

func (s *Server) serveStaticFiles(w http.ResponseWriter, r *http.Request) {
	requestPath := filepath.Clean(r.URL.Path)
	if requestPath == "." {
		requestPath = "/"
	}
	fullPath := filepath.Join(s.cfg.Root, strings.TrimPrefix(requestPath, "/"))

	if rel, err := filepath.Rel(s.cfg.Root, fullPath); err != nil || strings.HasPrefix(rel, "..") {
		http.NotFound(w, r)
		return
	}

	content, err := s.cfg.FS.ReadFile(fullPath)
	if err != nil {
		if stat, statErr := s.cfg.FS.Stat(fullPath); statErr == nil && stat.IsDir() {
			indexPath := filepath.Join(fullPath, "index.html")
			if indexContent, indexErr := s.cfg.FS.ReadFile(indexPath); indexErr == nil {
				content, fullPath, err = indexContent, indexPath, nil
			}
		}
		if err != nil {
			http.NotFound(w, r)
			return
		}
	}

	if ct := contentTypeByExt(filepath.Ext(fullPath)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if _, err := w.Write(content); err != nil {
		logging.Debug("failed to write static file response: %v", err)
	}
}

func contentTypeByExt(ext string) string {
	switch ext {
	case ".js", ".mjs", ".cjs":
		return "application/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	default:
		return ""
	}
}

// reloadClientScript is the browser-side script injected into HTML pages:
// it opens a streaming GET against the refresh endpoint and reloads the
// page when it reads a "1" line.
const reloadClientScript = `(() => {
  function connect() {
    const url = '` + refresh.DefaultPath + `';
    fetch(url).then(async (res) => {
      const reader = res.body.getReader();
      const decoder = new TextDecoder();
      let buf = '';
      for (;;) {
        const { done, value } = await reader.read();
        if (done) break;
        buf += decoder.decode(value, { stream: true });
        let idx;
        while ((idx = buf.indexOf('\n')) >= 0) {
          const line = buf.slice(0, idx);
          buf = buf.slice(idx + 1);
          if (line === '1') { location.reload(); return; }
        }
      }
    }).catch(() => setTimeout(connect, 1000));
  }
  connect();
})();`

func serveReloadClientScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(reloadClientScript))
}
