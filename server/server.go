/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/PivotLLM/Refinery/config"
	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/llm"
	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/refine"
	"github.com/PivotLLM/Refinery/reference"
	"github.com/PivotLLM/Refinery/reporting"
	"github.com/PivotLLM/Refinery/strategy"
	"github.com/PivotLLM/Refinery/templates"
	"github.com/PivotLLM/Refinery/workspace"
)

// assetPrefix is the embedded directory holding prompts, schemas, and
// report templates
const assetPrefix = "docs/ai"

// Server wraps the MCP server with our services
type Server struct {
	config    *config.Config
	logger    *logging.Logger
	reference *reference.Service
	workspace *workspace.Service
	llm       *llm.Service
	validator *templates.Validator
	reporter  *reporting.Reporter
	engine    *refine.Engine
	mcpServer *server.MCPServer
}

// New creates a new server instance
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	assets, err := fs.Sub(cfg.EmbeddedFS(), assetPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded assets: %w", err)
	}

	// Create services
	referenceService := reference.NewService(
		reference.WithEmbeddedFS(cfg.EmbeddedFS()),
		reference.WithLogger(logger),
	)
	workspaceService := workspace.NewService(
		workspace.WithWorkspaceDir(cfg.WorkspaceDir()),
		workspace.WithLogger(logger),
	)
	llmService := llm.NewService(cfg, logger)
	validator := templates.New(logger, assets)
	reporter := reporting.New(logger, assets)

	llmID := cfg.DefaultLLM()
	surgical := strategy.NewSurgical(llmService, validator, logger, llmID)
	regenerate := strategy.NewRegenerate(llmService, validator, logger, llmID)
	verifier := strategy.NewVerifier(llmService, validator, logger, llmID)
	engine := refine.New(logger, workspaceService, surgical, regenerate, verifier, cfg.RefineOptions())

	// Create MCP server
	mcpServer := server.NewMCPServer(
		global.ProgramName,
		global.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	srv := &Server{
		config:    cfg,
		logger:    logger,
		reference: referenceService,
		workspace: workspaceService,
		llm:       llmService,
		validator: validator,
		reporter:  reporter,
		engine:    engine,
		mcpServer: mcpServer,
	}

	// Register tools
	if err := srv.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return srv, nil
}

// readOnlyTool creates a tool with read-only annotations
// ReadOnly: true, Destructive: false, OpenWorld: false
func (s *Server) readOnlyTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(true),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

// defaultTool creates a tool with default annotations (non-destructive)
// ReadOnly: false, Destructive: false, OpenWorld: false
func (s *Server) defaultTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	// Reference tools (read-only, embedded)
	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolReferenceList,
			mcp.WithDescription("List all files in the built-in reference documentation. **Start by reading 'start.md' for refinement guidance.**"),
			mcp.WithString("prefix",
				mcp.Description("Optional path prefix filter"),
			),
		), s.handleReferenceList)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolReferenceGet,
			mcp.WithDescription("Read a file from the built-in reference documentation. **New to Refinery? Read 'start.md' first for the full refinement workflow.**"),
			mcp.WithString("path",
				mcp.Description("Path to the reference file. Start with 'start.md'"),
				mcp.Required(),
			),
			mcp.WithNumber("byte_offset",
				mcp.Description("Byte position to start reading from, for chunked reading of large files (default: 0)"),
			),
			mcp.WithNumber("max_bytes",
				mcp.Description("Maximum bytes to return in this chunk, for chunked reading of large files (default: 0 = entire file)"),
			),
		), s.handleReferenceGet)

	// Document tools
	s.mcpServer.AddTool(
		s.defaultTool(global.ToolDocumentImport,
			mcp.WithDescription("Import a file into the workspace as a refinable document. Markdown is imported directly; other formats (docx, pdf, html, ...) are converted to markdown first. The document is split into sections on '## ' headings."),
			mcp.WithString("name",
				mcp.Description("Workspace document name (alphanumeric, hyphens, underscores)"),
				mcp.Required(),
			),
			mcp.WithString("path",
				mcp.Description("Absolute path to the source file"),
				mcp.Required(),
			),
		), s.handleDocumentImport)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolDocumentGet,
			mcp.WithDescription("Get a workspace document: its section structure and, optionally, full content."),
			mcp.WithString("name",
				mcp.Description("Workspace document name"),
				mcp.Required(),
			),
			mcp.WithBoolean("include_content",
				mcp.Description("Include full section content (default: false, structure only)"),
			),
		), s.handleDocumentGet)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolDocumentList,
			mcp.WithDescription("List all workspace documents."),
		), s.handleDocumentList)

	// Task plan tools
	s.mcpServer.AddTool(
		s.defaultTool(global.ToolPlanPut,
			mcp.WithDescription("Store the refinement task plan for a document, replacing any prior plan. Tasks name a section, an action (surgical_edit or regenerate_section), a priority, and the issues to fix. Run it with refine_run."),
			mcp.WithString("document",
				mcp.Description("Workspace document name"),
				mcp.Required(),
			),
			mcp.WithString("mode",
				mcp.Description("Operation mode: 'full-auto' (default) or 'semi-auto'"),
			),
			mcp.WithString("tasks",
				mcp.Description("JSON array of refinement tasks"),
				mcp.Required(),
			),
		), s.handlePlanPut)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolPlanGet,
			mcp.WithDescription("Get the stored refinement task plan for a document."),
			mcp.WithString("document",
				mcp.Description("Workspace document name"),
				mcp.Required(),
			),
		), s.handlePlanGet)

	// Refinement tools
	s.mcpServer.AddTool(
		s.defaultTool(global.ToolRefineRun,
			mcp.WithDescription("Run the refinement loop for a document using its stored task plan. With wait=true the call blocks until the run settles; otherwise poll refine_status."),
			mcp.WithString("document",
				mcp.Description("Workspace document name"),
				mcp.Required(),
			),
			mcp.WithBoolean("wait",
				mcp.Description("Block until the run completes (default: false)"),
			),
		), s.handleRefineRun)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolRefineStatus,
			mcp.WithDescription("Get the state of a refinement run by run_id, or the most recent run for a document."),
			mcp.WithString("run_id",
				mcp.Description("Run ID returned by refine_run"),
			),
			mcp.WithString("document",
				mcp.Description("Workspace document name (used when run_id is omitted)"),
			),
		), s.handleRefineStatus)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolRefineResult,
			mcp.WithDescription("Get the full result of a completed refinement run, including the refined content, per-iteration history, and lock registry."),
			mcp.WithString("run_id",
				mcp.Description("Run ID returned by refine_run"),
				mcp.Required(),
			),
			mcp.WithBoolean("include_content",
				mcp.Description("Include the refined document content (default: true)"),
			),
		), s.handleRefineResult)

	// Misc tools
	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolLLMList,
			mcp.WithDescription("List configured LLMs and their availability."),
		), s.handleLLMList)

	s.mcpServer.AddTool(
		s.defaultTool(global.ToolReportGenerate,
			mcp.WithDescription("Generate a markdown report for a completed refinement run and save it in the workspace reports directory."),
			mcp.WithString("run_id",
				mcp.Description("Run ID returned by refine_run"),
				mcp.Required(),
			),
		), s.handleReportGenerate)

	return nil
}

// Run starts the MCP server with graceful shutdown
func (s *Server) Run() error {
	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		err := server.ServeStdio(s.mcpServer)
		// ServeStdio returns when stdin is closed (EOF) or on error
		errChan <- err
	}()

	s.logger.Infof("MCP server started successfully")

	// Wait for shutdown signal, stdin close, or error
	select {
	case <-sigChan:
		s.logger.Info("Shutdown signal received")
		s.waitForEngine()
		s.logger.Info("Server stopped")
		// Flush logs before exiting
		if err := s.logger.Sync(); err != nil {
			s.logger.Warnf("Failed to flush logs on shutdown: %v", err)
		}
		return nil

	case err := <-errChan:
		if err != nil {
			s.logger.Errorf("Server error: %v", err)
			// Still wait for active runs to settle before exiting on error
			s.waitForEngine()
			return fmt.Errorf("server error: %w", err)
		}
		// nil error means stdin was closed (EOF) - normal exit
		s.logger.Info("Connection closed")
		s.waitForEngine()
		s.logger.Info("Server exiting")
		return nil
	}
}

// waitForEngine blocks until in-flight refinement runs have settled so
// their run records are persisted before exit
func (s *Server) waitForEngine() {
	if s.engine.IsRunning() {
		s.logger.Info("Waiting for active refinement runs to complete...")
	}
	s.engine.Wait()
}
