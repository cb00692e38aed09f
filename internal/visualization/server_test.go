package visualization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/nvandessel/gkmerge/internal/network"
)

func TestServer_ServesHTML(t *testing.T) {
	srv := NewServer(testNetwork(t), "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
}

func TestServer_CascadeEndpoint(t *testing.T) {
	n := testNetwork(t)
	ts := httptest.NewServer(NewServer(n, "test").Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cascade?bank=0&rr=0")
	if err != nil {
		t.Fatalf("GET /api/cascade: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report CascadeReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !reflect.DeepEqual(report.Defaulted, []network.BankID{0}) {
		t.Errorf("Defaulted = %v, want [0]", report.Defaulted)
	}
	if report.Result.Mode != network.Simultaneous || len(report.Profile) == 0 {
		t.Errorf("report = %+v", report)
	}

	// The served network is left untouched.
	if n.NumDefaulted() != 0 {
		t.Errorf("NumDefaulted() = %d after request, want 0", n.NumDefaulted())
	}
}

func TestServer_CascadeEndpoint_BadRequests(t *testing.T) {
	ts := httptest.NewServer(NewServer(testNetwork(t), "test").Handler())
	defer ts.Close()

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"?bank=x", http.StatusBadRequest},
		{"?bank=9", http.StatusNotFound},
		{"?bank=0&mode=parallel", http.StatusBadRequest},
		{"?bank=0&rr=2", http.StatusBadRequest},
		{"?bank=0&mode=sequential&d=0.1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/cascade" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_GraphEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(testNetwork(t), "test").Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/graph")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var g Graph
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if g.BankCount != 3 || g.LinkCount != 2 {
		t.Errorf("graph = %+v", g)
	}
}

func TestServer_CleanShutdown(t *testing.T) {
	srv := NewServer(network.New(), "empty")
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
