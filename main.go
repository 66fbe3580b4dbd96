/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package main

import (
	"embed"
	"flag"
	"fmt"
	"os"

	"github.com/PivotLLM/Refinery/config"
	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/server"
)

// EmbeddedAssets contains the reference documentation, prompt templates,
// response schemas, and the report template from the docs/ai directory
//
//go:embed docs/ai/* docs/ai/prompts/* docs/ai/schemas/* docs/ai/templates/*
var EmbeddedAssets embed.FS

func main() {
	// Top-level panic recovery
	defer func() {
		if rec := recover(); rec != nil {
			_, _ = fmt.Fprintf(os.Stderr, "FATAL PANIC: %v\n", rec)
			os.Exit(2)
		}
	}()

	// Parse command line flags
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		version    = flag.Bool("version", false, "Show version information")
		help       = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	// Handle version flag
	if *version {
		fmt.Printf("%s v%s\n", global.ProgramName, global.Version)
		return
	}

	// Handle help flag
	if *help {
		showHelp()
		return
	}

	// Normal MCP server mode - pass embedded FS and optional config path
	opts := []config.Option{config.WithEmbeddedFS(EmbeddedAssets)}
	if *configPath != "" {
		opts = append(opts, config.WithConfigPath(*configPath))
	}
	cfg := config.New(opts...)

	// Load and validate configuration
	if err := cfg.Load(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with config path
	logger, err := logging.New(cfg.LogFile())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *logging.Logger) {
		// Ensure logs are flushed before exit
		_ = logger.Sync()
		_ = logger.Close()
	}(logger)

	// Set log level from config
	logger.SetLevel(cfg.LogLevel())

	// Announce startup
	logger.Infof("%s v%s starting", global.ProgramName, global.Version)

	// Log first-run message
	if cfg.IsFirstRun() {
		logger.Infof("First run detected - created default configuration at %s", cfg.ConfigPath())
		logger.Info("Please edit the configuration to enable LLMs")
	}

	// Log warning if no LLMs are enabled
	if !cfg.HasEnabledLLM() {
		logger.Warn("No LLMs are enabled - refine_run will not work until you enable at least one LLM in the configuration")
	}

	// Create and start server
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	// Run the server
	if err := srv.Run(); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
}

func showHelp() {
	fmt.Printf(`%s v%s - MCP Server for Iterative Document Refinement

USAGE:
    %s [OPTIONS]

OPTIONS:
    --config PATH    Path to configuration file
                     (default: $REFINERY_CONFIG or %s/%s)
    --version        Show version information
    --help          Show this help message

DESCRIPTION:
    Refinery is a Model Context Protocol (MCP) server that drives
    multi-section markdown documents toward an accepted quality level:

    - Import documents into a workspace (non-markdown is converted)
    - Store a per-section task plan of issues to fix
    - Run a bounded refinement loop: concurrent per-section repairs,
      independent verification, lock and budget enforcement
    - Inspect run status, results, and generated reports

CONFIGURATION:
    The server requires a JSON configuration file that defines:

    - workspace_dir: Directory for documents, plans, and runs
    - llms: Command-line LLM tools used for repair and verification
    - refine: Loop bounds (iterations, budgets, thresholds)

    On first run, a default configuration is created in %s.
    Edit the config file to enable at least one LLM.

FIRST RUN:
    1. Run %s once to create the default config
    2. Edit %s/%s to enable an LLM command
    3. Run %s again to start the server

EXAMPLES:
    # Start with default config
    %s

    # Start with custom config
    %s --config /path/to/config.json

    # Show version
    %s --version

ENVIRONMENT:
    REFINERY_CONFIG    Path to configuration file (if --config not used)

For more information, use the reference_list and reference_get tools
to access the embedded documentation.
`, global.ProgramName, global.Version,
		global.ProgramName,
		global.DefaultBaseDir, global.DefaultConfigFileName,
		global.DefaultBaseDir,
		global.ProgramName,
		global.DefaultBaseDir, global.DefaultConfigFileName,
		global.ProgramName,
		global.ProgramName,
		global.ProgramName,
		global.ProgramName)
}
