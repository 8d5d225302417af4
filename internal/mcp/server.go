// Package mcp provides an MCP (Model Context Protocol) server exposing
// the simulation engine to agent tooling: run a simulation, run an
// ensemble, and list persisted runs.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/episim/internal/runstore"
)

// Server wraps the MCP SDK server and the run store.
type Server struct {
	server *sdk.Server
	store  *runstore.Store
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "episim")
	Version string // Server version
	DataDir string // Directory for the run database
}

// NewServer creates a new MCP server with episim tools.
func NewServer(cfg *Config) (*Server, error) {
	store, err := runstore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server: mcpServer,
		store:  store,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all episim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_run",
		Description: "Run one epidemic simulation and return summary statistics",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_ensemble",
		Description: "Run an ensemble of perturbed simulations, optionally combined into one aggregate",
	}, s.handleEnsemble)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_runs",
		Description: "List simulation runs persisted in the run store",
	}, s.handleRuns)
}

// Run starts the MCP server over stdio transport. This blocks until the
// client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.store.Close()
	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	return s.store.Close()
}
