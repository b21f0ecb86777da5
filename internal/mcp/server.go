package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/audiomark-mcp/internal/expander"
	"github.com/dshills/audiomark-mcp/internal/indexer"
	"github.com/dshills/audiomark-mcp/internal/media"
	"github.com/dshills/audiomark-mcp/internal/project"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "audiomark-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// ProbeFunc reads media details of an audio file
type ProbeFunc func(path string) (*media.Info, error)

// Options configures the server's optional collaborators
type Options struct {
	Expander expander.Expander // nil disables expand_description
	Probe    ProbeFunc         // default: media.Probe
	Logger   *slog.Logger      // default: slog.Default()
}

// Server exposes an open project through MCP tools.
//
// Every tool call that touches the project holds mu, so a label change and the
// view refresh that follows it are never interleaved with another call.
type Server struct {
	mcp      *server.MCPServer
	project  *project.Project
	expander expander.Expander
	probe    ProbeFunc
	logger   *slog.Logger

	mu       sync.Mutex
	scanLock indexer.IndexLock
}

// NewServer creates a server for p
func NewServer(p *project.Project, opts *Options) (*Server, error) {
	if p == nil {
		return nil, errors.New("project is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	probe := opts.Probe
	if probe == nil {
		probe = media.Probe
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		project:  p,
		expander: opts.Expander,
		probe:    probe,
		logger:   logger.With("component", "mcp"),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Rescan reconciles the project with the dataset directory.
// A rescan requested while another is running fails with types.ErrBusy.
func (s *Server) Rescan(ctx context.Context) (*project.RescanReport, error) {
	if !s.scanLock.TryAcquire() {
		return nil, fmt.Errorf("%w: a dataset scan is already running", types.ErrBusy)
	}
	defer s.scanLock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project.Rescan(ctx)
}

// HandleChanges rescans after the watcher reports changed paths.
// Its signature matches watcher.Handler.
func (s *Server) HandleChanges(ctx context.Context, paths []string) {
	report, err := s.Rescan(ctx)
	switch {
	case errors.Is(err, types.ErrBusy):
		s.logger.Debug("rescan already running, change batch dropped", "paths", len(paths))
	case err != nil:
		s.logger.Error("rescan after dataset change failed", "error", err)
	case report.Changed:
		s.logger.Info("dataset changed on disk",
			"paths", len(paths), "moved", report.Reconcile.Moved,
			"added", report.Reconcile.Added, "corrupted", report.Reconcile.Corrupted)
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(scanDatasetTool(), s.handleScanDataset)
	s.mcp.AddTool(listEntriesTool(), s.handleListEntries)

	s.mcp.AddTool(nextEntryTool(), s.handleNextEntry)
	s.mcp.AddTool(currentEntryTool(), s.handleCurrentEntry)
	s.mcp.AddTool(selectEntryTool(), s.handleSelectEntry)

	s.mcp.AddTool(addLabelTool(), s.handleAddLabel)
	s.mcp.AddTool(updateLabelTool(), s.handleUpdateLabel)
	s.mcp.AddTool(deleteLabelTool(), s.handleDeleteLabel)
	s.mcp.AddTool(reportUnplayableTool(), s.handleReportUnplayable)

	s.mcp.AddTool(updateSettingsTool(), s.handleUpdateSettings)
	s.mcp.AddTool(saveProjectTool(), s.handleSaveProject)
	s.mcp.AddTool(exportMarkupTool(), s.handleExportMarkup)

	// Without a provider the tool reports ErrorCodeExpanderUnavailable on use
	s.mcp.AddTool(expandDescriptionTool(), s.handleExpandDescription)

	return nil
}
