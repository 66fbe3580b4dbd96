/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/refine"
	"github.com/PivotLLM/Refinery/templates"
)

// Verifier re-scores repaired content against the issues that prompted
// the repair, using a separate verification prompt so the repairing
// model does not grade its own work.
type Verifier struct {
	base
}

// verifyResponse is the structured reply expected from the LLM
type verifyResponse struct {
	Score           float64 `json:"score"`
	IssuesResolved  int     `json:"issues_resolved"`
	IssuesRemaining int     `json:"issues_remaining"`
	Notes           string  `json:"notes,omitempty"`
}

// NewVerifier creates the verification strategy
func NewVerifier(dispatcher Dispatcher, validator *templates.Validator, logger *logging.Logger, llmID string) *Verifier {
	return &Verifier{base: base{
		dispatcher: dispatcher,
		validator:  validator,
		logger:     logger,
		llmID:      llmID,
	}}
}

// Verify implements refine.Verifier
func (v *Verifier) Verify(ctx context.Context, issues []global.Issue, content string) (*refine.VerifyResult, error) {
	prompt, err := v.validator.PopulateTemplateFile(verifyPromptName, map[string]interface{}{
		"Issues":  issues,
		"Content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build verify prompt: %w", err)
	}

	start := time.Now()
	var response verifyResponse
	tokens, err := v.dispatchJSON(ctx, prompt, verifySchemaName, &response)
	if err != nil {
		return nil, err
	}

	if response.Score < 0 || response.Score > 1 {
		return nil, fmt.Errorf("verification score %.2f out of range [0,1]", response.Score)
	}

	v.logger.Debugf("Verification: score %.2f, %d resolved, %d remaining",
		response.Score, response.IssuesResolved, response.IssuesRemaining)

	return &refine.VerifyResult{
		Score:           response.Score,
		IssuesResolved:  response.IssuesResolved,
		IssuesRemaining: response.IssuesRemaining,
		TokensUsed:      tokens,
		Duration:        time.Since(start),
	}, nil
}
