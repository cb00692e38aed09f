package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/gkmerge/internal/network"
)

// CascadeReport is the response of /api/cascade.
type CascadeReport struct {
	Result    network.CascadeResult  `json:"result"`
	Defaulted []network.BankID       `json:"defaulted"`
	Profile   []network.ProfilePoint `json:"profile,omitempty"`
}

// Server serves the network page and runs what-if cascades against it.
// Every cascade is undone before the response is written, so the served
// network never changes.
type Server struct {
	mu         sync.Mutex
	net        *network.Network
	title      string
	httpServer *http.Server
	listener   net.Listener
	addr       string
}

// NewServer creates a new graph visualization server.
func NewServer(n *network.Network, title string) *Server {
	return &Server{net: n, title: title}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/cascade", s.handleCascade)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	html, err := RenderHTML(s.net, s.title)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g := RenderJSON(s.net)
	s.mu.Unlock()
	writeJSON(w, g)
}

// handleCascade shocks ?bank=ID and cascades with optional mode, rr and d
// query parameters. Defaults: simultaneous, rr=0, d=0.
func (s *Server) handleCascade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.Atoi(q.Get("bank"))
	if err != nil {
		http.Error(w, "missing or invalid 'bank' query parameter", http.StatusBadRequest)
		return
	}
	mode := network.Simultaneous
	if v := q.Get("mode"); v != "" {
		if mode, err = network.ParseCascadeMode(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	rr, err := floatParam(q.Get("rr"))
	if err != nil {
		http.Error(w, "invalid 'rr': "+err.Error(), http.StatusBadRequest)
		return
	}
	d, err := floatParam(q.Get("d"))
	if err != nil {
		http.Error(w, "invalid 'd': "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.net.ResetCascade()

	bank := network.BankID(id)
	if err := s.net.ShockID(bank); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	res, err := s.net.Cascade(bank, mode, rr, d, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, CascadeReport{
		Result:    res,
		Defaulted: s.net.DefaultedBanks(),
		Profile:   s.net.Profile(),
	})
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
