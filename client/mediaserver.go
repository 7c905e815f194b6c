package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// MediaServer streams picked local files to the player over loopback with
// standard partial-content semantics, so the player can seek freely. Only
// files explicitly shared through Share are served.
type MediaServer struct {
	log *slog.Logger

	mu      sync.RWMutex
	allowed map[string]struct{}

	srv  *http.Server
	ln   net.Listener
	addr string
}

func NewMediaServer(log *slog.Logger) *MediaServer {
	return &MediaServer{
		log:     log,
		allowed: make(map[string]struct{}),
	}
}

// Start begins serving on addr ("127.0.0.1:0" picks a free port).
func (m *MediaServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("media server listen: %w", err)
	}
	m.ln = ln
	m.addr = ln.Addr().String()
	m.srv = &http.Server{Handler: m.handler()}

	go func() {
		if err := m.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.log.Error("media server error", "error", err)
		}
	}()

	m.log.Info("media server started", "addr", m.addr)
	return nil
}

// Close stops the server.
func (m *MediaServer) Close() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Close()
}

// Addr returns the bound address after Start.
func (m *MediaServer) Addr() string {
	return m.addr
}

// Share registers a local file for serving and returns the URL the player
// should load.
func (m *MediaServer) Share(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m.mu.Lock()
	m.allowed[abs] = struct{}{}
	m.mu.Unlock()
	return fmt.Sprintf("http://%s/%s", m.addr, url.PathEscape(abs))
}

func (m *MediaServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, err := url.PathUnescape(r.URL.EscapedPath()[1:])
		if err != nil {
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}

		m.mu.RLock()
		_, ok := m.allowed[path]
		m.mu.RUnlock()
		if !ok {
			http.NotFound(w, r)
			return
		}

		f, err := os.Open(path)
		if err != nil {
			m.log.Warn("media request for unreadable file", "path", path, "error", err)
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		// ServeContent handles Range headers and picks the MIME type from
		// the file extension.
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}
