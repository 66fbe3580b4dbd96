/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PivotLLM/Refinery/document"
	"github.com/PivotLLM/Refinery/global"
)

// dispatchBatch runs every merged task of one iteration concurrently and
// joins the whole batch before returning. Per-task failures are absorbed
// into their outcome records; nothing here mutates the document. The
// returned patches map holds the new content for each successfully
// repaired and verified section.
func (e *Engine) dispatchBatch(ctx context.Context, doc *global.Document, batch []mergedTask, maxConcurrent int) ([]global.TaskOutcome, map[string]string) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)
	outcomes := make([]global.TaskOutcome, 0, len(batch))
	patches := make(map[string]string)

	for _, task := range batch {
		wg.Add(1)
		sem <- struct{}{}

		go func(t mergedTask) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, content := e.runTask(ctx, doc, t)

			mu.Lock()
			outcomes = append(outcomes, outcome)
			if outcome.Success {
				patches[t.SectionID] = content
			}
			mu.Unlock()
		}(task)
	}

	wg.Wait()

	// Completion order is nondeterministic; sort for stable records. The
	// aggregate computed from these is order-independent either way.
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].SectionID < outcomes[j].SectionID })
	return outcomes, patches
}

// runTask executes one merged task: strategy call, then verification.
// Every failure path returns a well-formed outcome; a failed attempt
// still spends a repair slot for its section.
func (e *Engine) runTask(ctx context.Context, doc *global.Document, t mergedTask) (global.TaskOutcome, string) {
	start := time.Now()
	outcome := global.TaskOutcome{
		SectionID: t.SectionID,
		Action:    t.Action,
	}

	fail := func(msg string) (global.TaskOutcome, string) {
		outcome.Error = msg
		outcome.DurationMs = time.Since(start).Milliseconds()
		return outcome, ""
	}

	section := document.SectionByID(doc, t.SectionID)
	if section == nil {
		// Inputs are validated before the loop starts; this is belt and braces
		return fail(fmt.Sprintf("unknown section: %s", t.SectionID))
	}

	strategy, ok := e.strategies[t.Action]
	if !ok {
		return fail(fmt.Sprintf("no strategy for action: %s", t.Action))
	}

	anchors := t.Anchors
	if anchors == nil {
		anchors = document.Anchors(doc, t.SectionID, global.DefaultContextAnchorLen)
	}

	req := &EditRequest{
		Section: *section,
		Issues:  t.Issues,
		Anchors: anchors,
		Outline: sectionOutline(doc),
	}

	patch, err := strategy.Repair(ctx, req)
	if err != nil {
		e.logger.Warnf("Section %s: %s failed: %v", t.SectionID, t.Action, err)
		return fail(err.Error())
	}
	outcome.TokensUsed += patch.TokensUsed
	outcome.DiffSummary = patch.DiffSummary
	if !patch.Success {
		e.logger.Warnf("Section %s: %s rejected: %s", t.SectionID, t.Action, patch.Err)
		return fail(patch.Err)
	}

	verify, err := e.verifier.Verify(ctx, t.Issues, patch.Content)
	if err != nil {
		// Treated like a failed repair: score unknown, prior content kept
		e.logger.Warnf("Section %s: verification failed: %v", t.SectionID, err)
		return fail(fmt.Sprintf("verification failed: %v", err))
	}

	outcome.Success = true
	outcome.Verified = true
	outcome.Score = verify.Score
	outcome.IssuesResolved = verify.IssuesResolved
	outcome.IssuesRemaining = verify.IssuesRemaining
	outcome.TokensUsed += verify.TokensUsed
	outcome.DurationMs = time.Since(start).Milliseconds()

	return outcome, patch.Content
}

// sectionOutline returns the ordered section titles of the document
func sectionOutline(doc *global.Document) []string {
	outline := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		title := s.Title
		if title == "" {
			title = "(introduction)"
		}
		outline = append(outline, title)
	}
	return outline
}
