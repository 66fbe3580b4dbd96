/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/PivotLLM/Refinery/config"
	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
)

// Service provides LLM dispatch via configured command-line tools
type Service struct {
	config    *config.Config
	logger    *logging.Logger
	llmConfig map[string]*config.LLM
}

// DispatchRequest represents a request to dispatch a prompt to an LLM
type DispatchRequest struct {
	LLMID   string `json:"llm_id"`
	Prompt  string `json:"prompt"`
	Timeout int    `json:"timeout,omitempty"` // seconds (min: 60, max: 900, default: 300)
}

// DispatchResult represents the result of an LLM dispatch. It is
// returned whenever the command was invoked, any exit code; for
// infrastructure failures (command not found, timeout) Dispatch returns
// (nil, error).
type DispatchResult struct {
	ExitCode       int    `json:"exit_code"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	DurationMs     int64  `json:"duration_ms"`
	TokensEstimate int    `json:"tokens_estimate"`
}

// LLMInfo represents information about a configured LLM
//
//goland:noinspection GoNameStartsWithPackageName
type LLMInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Default     bool   `json:"default"`
}

// LLMListResult represents the result of listing LLMs
//
//goland:noinspection GoNameStartsWithPackageName
type LLMListResult struct {
	LLMs []LLMInfo `json:"llms"`
}

// NewService creates a new LLM service
func NewService(cfg *config.Config, logger *logging.Logger) *Service {
	llmConfig := make(map[string]*config.LLM)

	llms := cfg.LLMs()
	for i := range llms {
		llm := &llms[i]
		llmConfig[llm.ID] = llm
	}

	return &Service{
		config:    cfg,
		logger:    logger,
		llmConfig: llmConfig,
	}
}

// ListLLMs returns information about all configured LLMs
func (s *Service) ListLLMs() *LLMListResult {
	var llms []LLMInfo

	for _, llm := range s.config.LLMs() {
		llms = append(llms, LLMInfo{
			ID:          llm.ID,
			DisplayName: llm.DisplayName,
			Description: llm.Description,
			Enabled:     llm.Enabled,
			Default:     llm.ID == s.config.DefaultLLM(),
		})
	}

	return &LLMListResult{LLMs: llms}
}

// DefaultLLMID returns the configured default LLM ID
func (s *Service) DefaultLLMID() string {
	return s.config.DefaultLLM()
}

// validateRequest validates a dispatch request and resolves the LLM
func (s *Service) validateRequest(req *DispatchRequest) (*config.LLM, error) {
	if req.LLMID == "" {
		return nil, fmt.Errorf("llm_id is required")
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	llm, exists := s.llmConfig[req.LLMID]
	if !exists {
		return nil, fmt.Errorf("unknown LLM ID: %s", req.LLMID)
	}
	if !llm.Enabled {
		return nil, fmt.Errorf("LLM %s is not enabled - set enabled: true in config to use it", req.LLMID)
	}

	return llm, nil
}

// validateTimeout clamps a dispatch timeout to the allowed range
func validateTimeout(timeout int) (int, error) {
	if timeout == 0 {
		return global.DefaultDispatchTimeout, nil
	}
	if timeout < global.MinDispatchTimeout || timeout > global.MaxDispatchTimeout {
		return 0, fmt.Errorf("timeout must be between %d and %d seconds", global.MinDispatchTimeout, global.MaxDispatchTimeout)
	}
	return timeout, nil
}

// Dispatch sends a prompt to a configured LLM command and waits for it
// to finish. The caller's context bounds the call in addition to the
// per-dispatch timeout.
func (s *Service) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResult, error) {
	llm, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	timeout, err := validateTimeout(req.Timeout)
	if err != nil {
		return nil, err
	}

	s.logger.Debugf("Dispatching %d bytes to LLM %s (timeout: %ds)", len(req.Prompt), req.LLMID, timeout)

	// Build args - substitute {{PROMPT}} unless using stdin
	var args []string
	if llm.Stdin {
		args = llm.Args
	} else {
		args = make([]string, len(llm.Args))
		for i, arg := range llm.Args {
			args[i] = strings.ReplaceAll(arg, "{{PROMPT}}", req.Prompt)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, llm.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if llm.Stdin {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	output := strings.TrimSpace(stdout.String())
	stderrOutput := strings.TrimSpace(stderr.String())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Errorf("LLM command timed out after %d seconds", timeout)
			return nil, fmt.Errorf("command timed out after %d seconds", timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("dispatch cancelled: %w", ctx.Err())
		}

		// An ExitError means the command ran and failed, which is an LLM
		// error the caller handles; anything else never started
		var execErr *exec.ExitError
		if !errors.As(err, &execErr) {
			s.logger.Errorf("LLM command infrastructure failure: %v", err)
			return nil, fmt.Errorf("infrastructure failure: %w", err)
		}
	}

	s.logger.Debugf("LLM %s exited with code %d in %s, returned %d bytes",
		req.LLMID, exitCode, duration.Round(time.Millisecond), len(output))

	if exitCode != 0 {
		s.logger.Warnf("LLM command exited with non-zero code %d", exitCode)
	}

	return &DispatchResult{
		ExitCode:   exitCode,
		Stdout:     output,
		Stderr:     stderrOutput,
		DurationMs: duration.Milliseconds(),
		// Rough chars-per-token heuristic; the command tools do not
		// report real usage
		TokensEstimate: (len(req.Prompt) + len(output)) / 4,
	}, nil
}
