/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package refine implements the bounded, iteration-synchronous repair loop
// that drives a generated document toward an accepted quality level.
//
// Within one iteration all unlocked sections repair concurrently; the loop
// never overlaps iterations. Repair strategies and the verifier are
// external collaborators behind small interfaces, so the engine can be
// exercised without any LLM.
package refine

import (
	"context"
	"time"

	"github.com/PivotLLM/Refinery/global"
)

// EditRequest is the input handed to a repair strategy for one merged
// task: the current section, every issue raised against it, and optional
// coherence anchors plus the document outline.
type EditRequest struct {
	Section global.Section
	Issues  []global.Issue
	Anchors *global.ContextAnchors
	Outline []string // ordered section titles, for regeneration context
}

// PatchResult is the common result shape both repair strategies produce.
// On failure the section keeps its prior content; Err carries the reason.
type PatchResult struct {
	Success     bool
	Content     string
	TokensUsed  int
	Duration    time.Duration
	DiffSummary string
	Err         string
}

// VerifyResult is the verifier's re-score of a repaired section
type VerifyResult struct {
	Score           float64 // in [0,1]
	IssuesResolved  int
	IssuesRemaining int
	TokensUsed      int
	Duration        time.Duration
}

// Strategy applies one repair attempt to a section. Implementations are
// expected to block on a network round trip; the engine calls them from
// per-task goroutines and never lets their failures escape the batch.
type Strategy interface {
	Repair(ctx context.Context, req *EditRequest) (*PatchResult, error)
}

// Verifier re-scores a repaired section against the issues that prompted
// the repair.
type Verifier interface {
	Verify(ctx context.Context, issues []global.Issue, content string) (*VerifyResult, error)
}
