// Package web provides the HTTP status and control server for the gpiomem agent.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/sweeney/gpiomem/internal/gpiomem"
	"github.com/sweeney/gpiomem/internal/pins"
	"github.com/sweeney/gpiomem/internal/status"
)

// maxBody bounds the size of a PUT body.
const maxBody = 64

// Driver drives a named output pin.
type Driver interface {
	Drive(name string, level gpiomem.Level, source string) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	driver     Driver
}

// New creates a Server that reads state from the given tracker. A nil driver
// disables pin control and a nil metrics handler disables /metrics.
func New(addr string, tracker *status.Tracker, driver Driver, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, driver: driver}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /pins/{name}", s.handlePin)
	if driver != nil {
		mux.HandleFunc("PUT /pins/{name}", s.handlePut)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	p, ok := s.tracker.Pin(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatPinJSON(p))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	level, err := gpiomem.ParseLevel(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.driver.Drive(name, level, pins.SourceHTTP)
	switch {
	case err == nil:
	case errors.Is(err, pins.ErrUnknownPin):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, pins.ErrNotOutput):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p, _ := s.tracker.Pin(name)
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatPinJSON(p))
}
