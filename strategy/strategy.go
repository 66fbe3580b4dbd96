/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package strategy implements the LLM-backed repair strategies and the
// verifier used by the refinement loop. Each strategy renders a prompt
// template, dispatches it to the configured LLM command, and parses the
// structured JSON response against its schema.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PivotLLM/Refinery/llm"
	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/templates"
)

// Dispatcher abstracts LLM dispatch so strategies can be exercised
// without running external commands. *llm.Service satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *llm.DispatchRequest) (*llm.DispatchResult, error)
}

// Prompt template and response schema asset names
const (
	surgicalPromptName   = "prompts/surgical.md"
	regeneratePromptName = "prompts/regenerate.md"
	verifyPromptName     = "prompts/verify.md"

	patchSchemaName      = "schemas/patch_response.json"
	regenerateSchemaName = "schemas/regenerate_response.json"
	verifySchemaName     = "schemas/verify_response.json"
)

// base carries the collaborators every strategy shares
type base struct {
	dispatcher Dispatcher
	validator  *templates.Validator
	logger     *logging.Logger
	llmID      string
}

// dispatchJSON renders nothing itself; it sends a prepared prompt,
// extracts the JSON payload from the response, validates it against the
// named schema, and unmarshals it into out. The token estimate is
// returned even on failure so the budget still sees failed spend.
func (b *base) dispatchJSON(ctx context.Context, prompt, schemaName string, out interface{}) (int, error) {
	result, err := b.dispatcher.Dispatch(ctx, &llm.DispatchRequest{
		LLMID:  b.llmID,
		Prompt: prompt,
	})
	if err != nil {
		return 0, err
	}

	if result.ExitCode != 0 {
		return result.TokensEstimate, fmt.Errorf("LLM exited with code %d: %s", result.ExitCode, firstLine(result.Stderr))
	}

	payload := []byte(templates.ExtractJSON(result.Stdout))

	validation, err := b.validator.ValidateJSONSchema(payload, schemaName)
	if err != nil {
		return result.TokensEstimate, err
	}
	if !validation.Valid {
		return result.TokensEstimate, fmt.Errorf("response failed schema validation: %s", firstOf(validation.Errors))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return result.TokensEstimate, fmt.Errorf("failed to parse response: %w", err)
	}

	return result.TokensEstimate, nil
}

// firstLine returns the first line of a string, for compact error text
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// firstOf returns the first entry of a non-empty slice, or a placeholder
func firstOf(errors []string) string {
	if len(errors) == 0 {
		return "unknown validation error"
	}
	return errors[0]
}
