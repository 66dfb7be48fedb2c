package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/oxhq/docserve/core"
)

// HTTPServer exposes the read-only query surface as a browser-facing REST
// API. It shares the index with the stdio server; all handlers go through
// the same shared-lock query operations.
type HTTPServer struct {
	config Config
	ix     *core.Index

	listener net.Listener
	server   *http.Server

	debugLog func(format string, args ...any)
}

// NewHTTPServer binds the first free port in [base, base+range) and
// prepares the route table. Serve must be called to start handling.
func NewHTTPServer(config Config, ix *core.Index, debugLog func(format string, args ...any)) (*HTTPServer, error) {
	if debugLog == nil {
		debugLog = func(string, ...any) {}
	}
	s := &HTTPServer{
		config:   config,
		ix:       ix,
		debugLog: debugLog,
	}

	probe := config.PortProbeRange
	if probe <= 0 {
		probe = 20
	}
	var lastErr error
	for port := config.WebserverPortBase; port < config.WebserverPortBase+probe; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			lastErr = err
			continue
		}
		s.listener = ln
		break
	}
	if s.listener == nil {
		return nil, core.Errf(core.KindIOError,
			"no free port in %d..%d: %v",
			config.WebserverPortBase, config.WebserverPortBase+probe-1, lastErr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/structure", s.handleStructure)
	mux.HandleFunc("/api/section/", s.handleSection)
	mux.HandleFunc("/api/metadata", s.handleMetadata)
	mux.HandleFunc("/api/dependencies", s.handleDependencies)
	mux.HandleFunc("/api/validate", s.handleValidate)
	mux.HandleFunc("/api/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Port returns the bound port.
func (s *HTTPServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve runs the HTTP server until Shutdown. Intended to run on its own
// goroutine.
func (s *HTTPServer) Serve() {
	if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		s.debugLog("HTTP server stopped: %v", err)
	}
}

// Shutdown drains in-flight requests and closes the listener.
func (s *HTTPServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "only GET is supported")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleStructure(w http.ResponseWriter, r *http.Request) {
	files := s.ix.RootFilesStructure()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}

func (s *HTTPServer) handleSection(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/section/")
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" {
		s.writeError(w, http.StatusBadRequest, "missing or malformed section id")
		return
	}

	sec, err := s.ix.GetSection(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("context") != "full" {
		s.writeJSON(w, http.StatusOK, sec)
		return
	}

	data, err := os.ReadFile(s.ix.Abs(sec.SourceFile))
	if err != nil {
		s.writeDomainError(w, core.Errf(core.KindIOError, "reading %s: %v", sec.SourceFile, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":           sec.ID,
		"title":        sec.Title,
		"level":        sec.Level,
		"content":      sec.Content,
		"source_file":  sec.SourceFile,
		"line_start":   sec.LineStart,
		"line_end":     sec.LineEnd,
		"children":     sec.Children,
		"full_content": string(data),
		"section_position": map[string]int{
			"line_start": sec.LineStart,
			"line_end":   sec.LineEnd,
		},
	})
}

func (s *HTTPServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ix.ProjectMetadata())
}

func (s *HTTPServer) handleDependencies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ix.Dependencies())
}

func (s *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ix.Validate())
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"project_root":   s.ix.Root(),
		"total_sections": s.ix.SectionCount(),
	})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.debugLog("failed to encode response: %v", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}

// writeDomainError maps core error kinds onto HTTP statuses.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindInvalidArgument:
		status = http.StatusBadRequest
	case core.KindStale, core.KindConflict:
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  core.KindOf(err),
	})
}
