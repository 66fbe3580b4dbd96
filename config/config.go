/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package config loads and validates the Refinery configuration file.
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/PivotLLM/Refinery/global"
)

// Config provides access to application configuration
type Config struct {
	configPath   string      // resolved path to config file
	data         *configData // parsed configuration
	firstRun     bool        // true if config was just created
	workspaceDir string      // resolved workspace directory
	embeddedFS   embed.FS    // embedded assets (config example, schemas, templates)
}

// configData holds the parsed configuration (internal)
type configData struct {
	Version      int                  `json:"version"`
	BaseDir      string               `json:"base_dir"`
	WorkspaceDir string               `json:"workspace_dir,omitempty"`
	DefaultLLM   string               `json:"default_llm,omitempty"`
	LLMs         []LLM                `json:"llms"`
	Refine       global.RefineOptions `json:"refine,omitempty"`
	Logging      Logging              `json:"logging"`
}

// LLMTypeCommand is the only supported LLM provider type
const LLMTypeCommand = "command"

// LLM represents an LLM configuration
type LLM struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled,omitempty"`

	// Type specifies the provider type (only "command" supported for now)
	Type string `json:"type,omitempty"`

	// Command is the path to the executable
	Command string `json:"command,omitempty"`
	// Args is the list of arguments; use {{PROMPT}} as placeholder for the prompt (unless Stdin is true)
	Args []string `json:"args,omitempty"`
	// Stdin: if true, prompt is piped to the command's stdin instead of using the {{PROMPT}} placeholder
	Stdin bool `json:"stdin,omitempty"`
}

// Logging represents logging configuration
type Logging struct {
	File  string `json:"file"`
	Level string `json:"level"`
}

// Option is a functional option for configuring Config
type Option func(*Config)

// New creates a new Config instance with optional configuration
func New(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithConfigPath sets an explicit config file path
func WithConfigPath(path string) Option {
	return func(c *Config) {
		c.configPath = path
	}
}

// WithEmbeddedFS sets the embedded filesystem for default assets
func WithEmbeddedFS(efs embed.FS) Option {
	return func(c *Config) {
		c.embeddedFS = efs
	}
}

// Load loads and validates configuration from file. If the base directory
// or config file doesn't exist, it creates them from the embedded example.
func (c *Config) Load() error {
	configPath, err := c.resolveConfigPath()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	c.configPath = configPath

	baseDir := global.ExpandHomePath(global.DefaultBaseDir)
	if !global.DirExists(baseDir) {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
		}
	}

	if !global.FileExists(configPath) {
		c.firstRun = true
		if err := c.setupDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to create default config at %s: %w", configPath, err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// First pass: detect unknown fields using strict parsing
	var cfg configData
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: config file %s: %v\n", configPath, err)
			// Re-parse without strict mode to still load the config
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		} else {
			return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	c.data = &cfg

	if err := c.resolveBaseDir(); err != nil {
		return err
	}

	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Resolve workspace directory and create its layout
	wsDir := c.data.WorkspaceDir
	if wsDir == "" {
		wsDir = global.DefaultWorkspaceDir
	}
	c.workspaceDir = c.resolvePath(wsDir)
	for _, sub := range []string{global.DocumentsDirName, global.PlansDirName, global.RunsDirName, global.ReportsDirName} {
		if err := global.EnsureDir(filepath.Join(c.workspaceDir, sub)); err != nil {
			return fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}

	return nil
}

// setupDefaultConfig creates a default config file from the embedded config-example.json
func (c *Config) setupDefaultConfig(configPath string) error {
	content, err := c.embeddedFS.ReadFile("docs/ai/config-example.json")
	if err != nil {
		return fmt.Errorf("failed to read embedded config-example.json: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

// resolveConfigPath determines the config file path using precedence rules
func (c *Config) resolveConfigPath() (string, error) {
	// 1. Explicit path (from WithConfigPath option)
	if c.configPath != "" {
		return c.resolveToAbsolute(c.configPath)
	}

	// 2. Environment variable
	if envPath := os.Getenv(global.ConfigEnvVar); envPath != "" {
		return c.resolveToAbsolute(envPath)
	}

	// 3. Default: base_dir/config.json
	baseDir := global.ExpandHomePath(global.DefaultBaseDir)
	return filepath.Join(baseDir, global.DefaultConfigFileName), nil
}

// resolveBaseDir resolves and validates the base_dir from config
func (c *Config) resolveBaseDir() error {
	if c.data.BaseDir == "" {
		c.data.BaseDir = global.ExpandHomePath(global.DefaultBaseDir)
		return nil
	}

	resolved := global.ExpandHomePath(c.data.BaseDir)
	if !filepath.IsAbs(resolved) {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: base_dir '%s' is not absolute, using default '%s'\n",
			c.data.BaseDir, global.DefaultBaseDir)
		resolved = global.ExpandHomePath(global.DefaultBaseDir)
	}

	c.data.BaseDir = resolved
	return nil
}

// resolveToAbsolute converts a path to absolute, expanding ~/ if needed
func (c *Config) resolveToAbsolute(path string) (string, error) {
	expanded := global.ExpandHomePath(path)
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Abs(expanded)
}

// resolvePath resolves a path relative to base_dir
func (c *Config) resolvePath(path string) string {
	if path == "" {
		return ""
	}
	expanded := global.ExpandHomePath(path)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(c.data.BaseDir, expanded)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.data.Version != 1 {
		if c.data.Version < 1 {
			return fmt.Errorf("config version %d is too old (expected 1)", c.data.Version)
		}
		return fmt.Errorf("config version %d is newer than supported (expected 1)", c.data.Version)
	}

	// At least one LLM must be defined (but doesn't need to be enabled)
	if len(c.data.LLMs) == 0 {
		return fmt.Errorf("llms cannot be empty - please define at least one LLM")
	}

	llmIDs := make(map[string]bool)
	for _, llm := range c.data.LLMs {
		if llm.ID == "" {
			return fmt.Errorf("LLM id cannot be empty")
		}
		if llm.DisplayName == "" {
			return fmt.Errorf("LLM display_name cannot be empty for LLM %s", llm.ID)
		}
		if llmIDs[llm.ID] {
			return fmt.Errorf("duplicate LLM id: %s", llm.ID)
		}
		llmIDs[llm.ID] = true

		llmType := llm.Type
		if llmType == "" {
			llmType = LLMTypeCommand
		}
		if llmType != LLMTypeCommand {
			return fmt.Errorf("invalid LLM type '%s' for LLM %s (only 'command' is supported)", llmType, llm.ID)
		}

		if llm.Command == "" {
			return fmt.Errorf("LLM command cannot be empty for LLM %s", llm.ID)
		}

		// Verify {{PROMPT}} placeholder exists in args (unless Stdin is true)
		if !llm.Stdin {
			hasPromptPlaceholder := false
			for _, arg := range llm.Args {
				if strings.Contains(arg, "{{PROMPT}}") {
					hasPromptPlaceholder = true
					break
				}
			}
			if !hasPromptPlaceholder {
				return fmt.Errorf("LLM args must contain {{PROMPT}} placeholder for LLM %s (or set stdin: true)", llm.ID)
			}
		}

		// Validate command executable exists (only for enabled LLMs)
		if llm.Enabled {
			expandedCmd := global.ExpandHomePath(llm.Command)
			if _, err := exec.LookPath(expandedCmd); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Warning: LLM %s: executable not found: %s - disabling\n", llm.ID, llm.Command)
				for i := range c.data.LLMs {
					if c.data.LLMs[i].ID == llm.ID {
						c.data.LLMs[i].Enabled = false
						break
					}
				}
			}
		}
	}

	if c.data.DefaultLLM != "" && !llmIDs[c.data.DefaultLLM] {
		return fmt.Errorf("default_llm references unknown LLM: %s", c.data.DefaultLLM)
	}

	// Refinement bounds are hard configuration errors
	if err := c.data.Refine.Validate(); err != nil {
		return err
	}

	return nil
}

// ConfigPath returns the resolved config file path
//
//goland:noinspection GoNameStartsWithPackageName
func (c *Config) ConfigPath() string {
	return c.configPath
}

// IsFirstRun reports whether the config file was created by this load
func (c *Config) IsFirstRun() bool {
	return c.firstRun
}

// BaseDir returns the resolved base directory
func (c *Config) BaseDir() string {
	return c.data.BaseDir
}

// WorkspaceDir returns the resolved workspace directory
func (c *Config) WorkspaceDir() string {
	return c.workspaceDir
}

// LLMs returns the configured LLMs
func (c *Config) LLMs() []LLM {
	return c.data.LLMs
}

// EnabledLLMs returns only the enabled LLMs
func (c *Config) EnabledLLMs() []LLM {
	var enabled []LLM
	for _, llm := range c.data.LLMs {
		if llm.Enabled {
			enabled = append(enabled, llm)
		}
	}
	return enabled
}

// HasEnabledLLM reports whether at least one LLM is enabled
func (c *Config) HasEnabledLLM() bool {
	return len(c.EnabledLLMs()) > 0
}

// DefaultLLM returns the configured default LLM ID (may be empty)
func (c *Config) DefaultLLM() string {
	return c.data.DefaultLLM
}

// RefineOptions returns the refinement bounds with defaults applied.
// The returned value is a copy; callers cannot mutate configuration.
func (c *Config) RefineOptions() global.RefineOptions {
	return c.data.Refine.WithDefaults()
}

// LogFile returns the resolved log file path
func (c *Config) LogFile() string {
	if c.data.Logging.File == "" {
		return filepath.Join(c.data.BaseDir, "refinery.log")
	}
	return c.resolvePath(c.data.Logging.File)
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() string {
	if c.data.Logging.Level == "" {
		return global.LogLevelInfo
	}
	return strings.ToUpper(c.data.Logging.Level)
}

// EmbeddedFS returns the embedded assets filesystem
func (c *Config) EmbeddedFS() embed.FS {
	return c.embeddedFS
}
