package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/secrets"
	"github.com/fyrsmithlabs/chatlog/internal/store"
)

// Server is an MCP server backed by the assembler and store.
type Server struct {
	mcp       *mcp.Server
	assembler *conversation.Assembler
	store     *store.Store
	scrubber  *secrets.Scrubber
	metrics   *Metrics
	logger    *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "chatlog")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	Logger *logging.Logger

	// Meter overrides the global meter provider.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "chatlog",
		Version: "1.0.0",
		Logger:  logging.Nop(),
	}
}

// NewServer creates a new MCP server. scrubber may be nil.
func NewServer(cfg *Config, assembler *conversation.Assembler, st *store.Store, scrubber *secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		assembler: assembler,
		store:     st,
		scrubber:  scrubber,
		metrics:   NewMetrics(cfg.Meter),
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// scrub redacts secrets from text returned to clients.
func (s *Server) scrub(ctx context.Context, text string) string {
	if s.scrubber == nil {
		return text
	}
	res := s.scrubber.Scrub(text)
	if res.HasFindings() {
		s.logger.Debug(ctx, "redacted tool output", zap.Int("findings", len(res.Findings)))
	}
	return res.Scrubbed
}
