// Package mcp provides an MCP (Model Context Protocol) server for gkmerge.
//
// The server keeps named in-memory networks for a session so that a client
// can build a network, merge banks and run cascades step by step, and it
// runs complete experiments whose results go to a ResultStore.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/gkmerge/internal/config"
	"github.com/nvandessel/gkmerge/internal/logging"
	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/ratelimit"
	"github.com/nvandessel/gkmerge/internal/store"
)

// DefaultNetwork is the session network used when a tool gets no name.
const DefaultNetwork = "default"

// Server wraps the MCP SDK server and provides gkmerge-specific functionality.
type Server struct {
	server       *sdk.Server
	store        store.ResultStore
	settings     *config.GkmergeConfig
	logger       *slog.Logger
	tracer       *logging.TraceLogger
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger

	mu       sync.Mutex
	networks map[string]*session
}

// session is a named network with the seed it was built from.
type session struct {
	net  *network.Network
	seed uint64
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "gkmerge")
	Version string // Server version

	// Store receives experiment results. Nil means an in-memory store.
	Store store.ResultStore
	// Settings supplies experiment defaults and limits. Nil means
	// config.Default().
	Settings *config.GkmergeConfig
	// Logger defaults to discarding output.
	Logger *slog.Logger
	// Tracer receives cascade and merge events of every network.
	Tracer *logging.TraceLogger
	// AuditDir, if set, receives audit.jsonl with one line per tool call.
	AuditDir string
}

// NewServer creates a new MCP server with gkmerge tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	rs := cfg.Store
	if rs == nil {
		rs = store.NewInMemoryResultStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        rs,
		settings:     settings,
		logger:       logger,
		tracer:       cfg.Tracer,
		toolLimiters: ratelimit.NewToolLimiters(settings.MCP.RateLimits),
		networks:     make(map[string]*session),
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "transport", "stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close releases the store and the audit log.
func (s *Server) Close() error {
	s.auditLogger.Close()
	return s.store.Close()
}

// network returns the named session network.
func (s *Server) network(name string) (*session, error) {
	if name == "" {
		name = DefaultNetwork
	}
	sess, ok := s.networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: no network named %q, build one with %s first",
			network.ErrNotFound, name, ratelimit.ToolBuild)
	}
	return sess, nil
}
