/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import "time"

// Section is one addressable unit of a document. The identifier is stable
// for the life of a refinement run; content is the only field that changes.
type Section struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// Document is an ordered sequence of sections produced by an upstream
// generation pipeline and imported into the workspace as markdown.
type Document struct {
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	Sections  []Section `json:"sections"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Issue is a single defect raised against a section by the upstream
// evaluator, with instructions for fixing it.
type Issue struct {
	Description string `json:"description"`
	Excerpt     string `json:"excerpt,omitempty"` // quoted text the issue refers to
	Fix         string `json:"fix"`
}

// ContextAnchors carries excerpts of the neighbouring sections so a repair
// can keep transitions coherent.
type ContextAnchors struct {
	Preceding string `json:"preceding,omitempty"`
	Following string `json:"following,omitempty"`
}

// RefinementTask is one unit of targeted repair work against a single
// section. Tasks are created by the evaluator and are never mutated here.
type RefinementTask struct {
	SectionID string          `json:"section_id"`
	Action    string          `json:"action"`   // surgical_edit or regenerate_section
	Priority  string          `json:"priority"` // critical, major, minor
	Issues    []Issue         `json:"issues"`
	Anchors   *ContextAnchors `json:"anchors,omitempty"`
}

// TaskPlan is the accepted task list for one document, as submitted by the
// upstream evaluator via plan_put.
type TaskPlan struct {
	Document  string           `json:"document"`
	Mode      string           `json:"mode"` // full-auto or semi-auto
	Tasks     []RefinementTask `json:"tasks"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// TaskOutcome records what happened to one merged task within an iteration.
// A failed repair keeps Success false and Error set; Verified reports
// whether the verifier produced a usable score.
type TaskOutcome struct {
	SectionID       string  `json:"section_id"`
	Action          string  `json:"action"`
	Success         bool    `json:"success"`
	Verified        bool    `json:"verified"`
	Score           float64 `json:"score"`
	IssuesResolved  int     `json:"issues_resolved,omitempty"`
	IssuesRemaining int     `json:"issues_remaining,omitempty"`
	TokensUsed      int     `json:"tokens_used"`
	DurationMs      int64   `json:"duration_ms"`
	DiffSummary     string  `json:"diff_summary,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// IterationRecord is the append-only per-iteration entry in the convergence
// history.
type IterationRecord struct {
	Iteration  int           `json:"iteration"`
	Score      float64       `json:"score"`
	Outcomes   []TaskOutcome `json:"outcomes"`
	TokensUsed int           `json:"tokens_used"`
	DurationMs int64         `json:"duration_ms"`
}

// SectionLockInfo reports the final lock registry state for one section.
type SectionLockInfo struct {
	SectionID string `json:"section_id"`
	EditCount int    `json:"edit_count"`
	Locked    bool   `json:"locked"`
	Reason    string `json:"reason,omitempty"` // max_edits or regression
}

// RefinementResult is produced exactly once per run, at loop termination.
type RefinementResult struct {
	RunID              string            `json:"run_id"`
	Document           string            `json:"document"`
	Content            string            `json:"content"`
	Status             string            `json:"status"` // accepted, accepted_warning, best_effort, escalated
	Termination        string            `json:"termination"`
	Iterations         int               `json:"iterations"`
	TokensUsed         int               `json:"tokens_used"`
	DurationMs         int64             `json:"duration_ms"`
	FinalScore         float64           `json:"final_score"`
	Locks              []SectionLockInfo `json:"locks,omitempty"`
	UnresolvedSections []string          `json:"unresolved_sections,omitempty"` // sections whose tasks were dropped by locking
}

// RefinementEvent is one observable milestone of a run. Events are emitted
// in the order they happen and never feed back into control flow.
type RefinementEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Iteration  int       `json:"iteration,omitempty"`
	SectionID  string    `json:"section_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Score      float64   `json:"score,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RunRecord is the persisted state of one refinement run in the workspace.
type RunRecord struct {
	RunID      string            `json:"run_id"`
	Document   string            `json:"document"`
	Mode       string            `json:"mode"`
	State      string            `json:"state"` // running or complete
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	History    []IterationRecord `json:"history,omitempty"`
	Result     *RefinementResult `json:"result,omitempty"`
}

// RunRequest is the server-level request to start a refinement run.
type RunRequest struct {
	Document string `json:"document"`
	Wait     bool   `json:"wait"`
}

// RunResponse is returned by refine_run. For async runs the result is not
// yet populated; poll refine_status / refine_result with the run ID.
type RunResponse struct {
	RunID    string            `json:"run_id"`
	Document string            `json:"document"`
	Message  string            `json:"message"`
	Result   *RefinementResult `json:"result,omitempty"`
}
