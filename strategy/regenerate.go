/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/refine"
	"github.com/PivotLLM/Refinery/templates"
)

// Regenerate rewrites a section from scratch. The prompt carries the
// document outline and the neighbouring-section anchors so the rewrite
// stays coherent with the surrounding text.
type Regenerate struct {
	base
}

// regenerateResponse is the structured reply expected from the LLM
type regenerateResponse struct {
	Content string `json:"content"`
	Notes   string `json:"notes,omitempty"`
}

// NewRegenerate creates the section regeneration strategy
func NewRegenerate(dispatcher Dispatcher, validator *templates.Validator, logger *logging.Logger, llmID string) *Regenerate {
	return &Regenerate{base: base{
		dispatcher: dispatcher,
		validator:  validator,
		logger:     logger,
		llmID:      llmID,
	}}
}

// Repair implements refine.Strategy
func (r *Regenerate) Repair(ctx context.Context, req *refine.EditRequest) (*refine.PatchResult, error) {
	prompt, err := r.validator.PopulateTemplateFile(regeneratePromptName, map[string]interface{}{
		"Title":   req.Section.Title,
		"Content": req.Section.Content,
		"Issues":  req.Issues,
		"Anchors": req.Anchors,
		"Outline": req.Outline,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build regenerate prompt: %w", err)
	}

	start := time.Now()
	var response regenerateResponse
	tokens, err := r.dispatchJSON(ctx, prompt, regenerateSchemaName, &response)
	if err != nil {
		return nil, err
	}

	result := &refine.PatchResult{
		Success:     response.Content != "",
		Content:     response.Content,
		TokensUsed:  tokens,
		Duration:    time.Since(start),
		DiffSummary: "section regenerated",
	}
	if !result.Success {
		result.Err = "model returned empty content"
		return result, nil
	}

	r.logger.Debugf("Regenerated section %s (%d bytes)", req.Section.ID, len(response.Content))
	return result, nil
}
