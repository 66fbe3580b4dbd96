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

// Surgical applies minimal, targeted edits to a section: only the
// passages named by the issues change, the rest of the section is
// preserved verbatim.
type Surgical struct {
	base
}

// surgicalResponse is the structured reply expected from the LLM
type surgicalResponse struct {
	Success     bool   `json:"success"`
	Content     string `json:"content"`
	DiffSummary string `json:"diff_summary"`
	Reason      string `json:"reason,omitempty"`
}

// NewSurgical creates the surgical edit strategy
func NewSurgical(dispatcher Dispatcher, validator *templates.Validator, logger *logging.Logger, llmID string) *Surgical {
	return &Surgical{base: base{
		dispatcher: dispatcher,
		validator:  validator,
		logger:     logger,
		llmID:      llmID,
	}}
}

// Repair implements refine.Strategy
func (s *Surgical) Repair(ctx context.Context, req *refine.EditRequest) (*refine.PatchResult, error) {
	prompt, err := s.validator.PopulateTemplateFile(surgicalPromptName, map[string]interface{}{
		"Title":   req.Section.Title,
		"Content": req.Section.Content,
		"Issues":  req.Issues,
		"Anchors": req.Anchors,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build surgical prompt: %w", err)
	}

	start := time.Now()
	var response surgicalResponse
	tokens, err := s.dispatchJSON(ctx, prompt, patchSchemaName, &response)
	if err != nil {
		return nil, err
	}

	result := &refine.PatchResult{
		Success:     response.Success,
		Content:     response.Content,
		TokensUsed:  tokens,
		Duration:    time.Since(start),
		DiffSummary: response.DiffSummary,
	}

	if !response.Success {
		result.Err = response.Reason
		if result.Err == "" {
			result.Err = "model declined the edit"
		}
		return result, nil
	}

	if response.Content == "" {
		result.Success = false
		result.Err = "model returned empty content"
		return result, nil
	}

	s.logger.Debugf("Surgical edit for %s: %s", req.Section.ID, response.DiffSummary)
	return result, nil
}
