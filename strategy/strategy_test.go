/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package strategy

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/llm"
	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/refine"
	"github.com/PivotLLM/Refinery/templates"
)

// fakeDispatcher returns canned results and records the prompt it was
// given
type fakeDispatcher struct {
	result *llm.DispatchResult
	err    error
	prompt string
	llmID  string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req *llm.DispatchRequest) (*llm.DispatchResult, error) {
	f.prompt = req.Prompt
	f.llmID = req.LLMID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func stdout(s string, tokens int) *llm.DispatchResult {
	return &llm.DispatchResult{Stdout: s, TokensEstimate: tokens}
}

func testValidator(t *testing.T) *templates.Validator {
	t.Helper()
	assets := fstest.MapFS{
		surgicalPromptName:   &fstest.MapFile{Data: []byte("Fix section {{.Title}}: {{.Content}}")},
		regeneratePromptName: &fstest.MapFile{Data: []byte("Rewrite section {{.Title}}: {{.Content}}")},
		verifyPromptName:     &fstest.MapFile{Data: []byte("Score this: {{.Content}}")},
		patchSchemaName: &fstest.MapFile{Data: []byte(`{
			"type": "object",
			"required": ["success", "content", "diff_summary"],
			"properties": {
				"success": {"type": "boolean"},
				"content": {"type": "string"},
				"diff_summary": {"type": "string"},
				"reason": {"type": "string"}
			}
		}`)},
		regenerateSchemaName: &fstest.MapFile{Data: []byte(`{
			"type": "object",
			"required": ["content"],
			"properties": {
				"content": {"type": "string"},
				"notes": {"type": "string"}
			}
		}`)},
		verifySchemaName: &fstest.MapFile{Data: []byte(`{
			"type": "object",
			"required": ["score", "issues_resolved", "issues_remaining"],
			"properties": {
				"score": {"type": "number"},
				"issues_resolved": {"type": "integer"},
				"issues_remaining": {"type": "integer"},
				"notes": {"type": "string"}
			}
		}`)},
	}
	return templates.New(nil, assets)
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New("")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.SetLevel(global.LogLevelError)
	return logger
}

func editRequest() *refine.EditRequest {
	return &refine.EditRequest{
		Section: global.Section{ID: "s01-intro", Title: "Intro", Content: "alpha"},
		Issues:  []global.Issue{{Description: "too vague"}},
	}
}

func TestSurgicalRepairSuccess(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(
		"```json\n{\"success\": true, \"content\": \"alpha, sharpened\", \"diff_summary\": \"reworded opening\"}\n```", 120)}
	s := NewSurgical(dispatcher, testValidator(t), testLogger(t), "claude")

	result, err := s.Repair(context.Background(), editRequest())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	if !result.Success {
		t.Errorf("Success = false, err %q", result.Err)
	}
	if result.Content != "alpha, sharpened" {
		t.Errorf("Content = %q", result.Content)
	}
	if result.DiffSummary != "reworded opening" {
		t.Errorf("DiffSummary = %q", result.DiffSummary)
	}
	if result.TokensUsed != 120 {
		t.Errorf("TokensUsed = %d, want 120", result.TokensUsed)
	}
	if dispatcher.llmID != "claude" {
		t.Errorf("dispatched LLM = %q, want claude", dispatcher.llmID)
	}
	if !strings.Contains(dispatcher.prompt, "Fix section Intro: alpha") {
		t.Errorf("prompt = %q, template not populated", dispatcher.prompt)
	}
}

func TestSurgicalRepairDeclined(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(
		`{"success": false, "content": "", "diff_summary": "", "reason": "issue not present in this section"}`, 40)}
	s := NewSurgical(dispatcher, testValidator(t), testLogger(t), "claude")

	result, err := s.Repair(context.Background(), editRequest())
	if err != nil {
		t.Fatalf("Repair() error = %v (a declined edit is not an error)", err)
	}
	if result.Success {
		t.Error("Success = true for a declined edit")
	}
	if result.Err != "issue not present in this section" {
		t.Errorf("Err = %q", result.Err)
	}
	if result.TokensUsed != 40 {
		t.Errorf("TokensUsed = %d, want 40 (declined calls still spend)", result.TokensUsed)
	}
}

func TestSurgicalRepairEmptyContent(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(
		`{"success": true, "content": "", "diff_summary": "nothing"}`, 10)}
	s := NewSurgical(dispatcher, testValidator(t), testLogger(t), "claude")

	result, err := s.Repair(context.Background(), editRequest())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if result.Success {
		t.Error("Success = true with empty content")
	}
	if result.Err != "model returned empty content" {
		t.Errorf("Err = %q", result.Err)
	}
}

func TestSurgicalRepairSchemaViolation(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(`{"success": true}`, 10)}
	s := NewSurgical(dispatcher, testValidator(t), testLogger(t), "claude")

	if _, err := s.Repair(context.Background(), editRequest()); err == nil {
		t.Error("expected error for schema-invalid response")
	}
}

func TestSurgicalRepairNonZeroExit(t *testing.T) {
	dispatcher := &fakeDispatcher{result: &llm.DispatchResult{
		ExitCode:       1,
		Stderr:         "rate limit exceeded\nplease retry later",
		TokensEstimate: 30,
	}}
	s := NewSurgical(dispatcher, testValidator(t), testLogger(t), "claude")

	_, err := s.Repair(context.Background(), editRequest())
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error = %v, want first stderr line", err)
	}
	if strings.Contains(err.Error(), "please retry later") {
		t.Errorf("error = %v, should carry only the first stderr line", err)
	}
}

func TestSurgicalRepairDispatchError(t *testing.T) {
	dispatcher := &fakeDispatcher{err: fmt.Errorf("command timed out after 600 seconds")}
	s := NewSurgical(dispatcher, testValidator(t), testLogger(t), "claude")

	if _, err := s.Repair(context.Background(), editRequest()); err == nil {
		t.Error("expected error when dispatch fails")
	}
}

func TestRegenerateRepair(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(
		"Here is the rewrite:\n```json\n{\"content\": \"a full rewrite\", \"notes\": \"restructured\"}\n```", 200)}
	r := NewRegenerate(dispatcher, testValidator(t), testLogger(t), "claude")

	result, err := r.Repair(context.Background(), editRequest())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if !result.Success || result.Content != "a full rewrite" {
		t.Errorf("result = %+v", result)
	}
	if result.DiffSummary != "section regenerated" {
		t.Errorf("DiffSummary = %q", result.DiffSummary)
	}
	if !strings.Contains(dispatcher.prompt, "Rewrite section Intro") {
		t.Errorf("prompt = %q", dispatcher.prompt)
	}
}

func TestRegenerateRepairEmptyContent(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(`{"content": ""}`, 10)}
	r := NewRegenerate(dispatcher, testValidator(t), testLogger(t), "claude")

	result, err := r.Repair(context.Background(), editRequest())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if result.Success {
		t.Error("Success = true with empty content")
	}
	if result.Err != "model returned empty content" {
		t.Errorf("Err = %q", result.Err)
	}
}

func TestVerify(t *testing.T) {
	dispatcher := &fakeDispatcher{result: stdout(
		`{"score": 0.85, "issues_resolved": 2, "issues_remaining": 1}`, 60)}
	v := NewVerifier(dispatcher, testValidator(t), testLogger(t), "claude")

	result, err := v.Verify(context.Background(), []global.Issue{{Description: "x"}}, "revised content")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Score != 0.85 || result.IssuesResolved != 2 || result.IssuesRemaining != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.TokensUsed != 60 {
		t.Errorf("TokensUsed = %d, want 60", result.TokensUsed)
	}
	if !strings.Contains(dispatcher.prompt, "revised content") {
		t.Errorf("prompt = %q", dispatcher.prompt)
	}
}

func TestVerifyScoreOutOfRange(t *testing.T) {
	tests := []string{
		`{"score": 1.5, "issues_resolved": 0, "issues_remaining": 0}`,
		`{"score": -0.1, "issues_resolved": 0, "issues_remaining": 0}`,
	}
	for _, response := range tests {
		dispatcher := &fakeDispatcher{result: stdout(response, 10)}
		v := NewVerifier(dispatcher, testValidator(t), testLogger(t), "claude")
		if _, err := v.Verify(context.Background(), nil, "content"); err == nil {
			t.Errorf("expected out-of-range error for %s", response)
		}
	}
}
