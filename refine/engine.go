/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PivotLLM/Refinery/document"
	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
	"github.com/PivotLLM/Refinery/workspace"
)

// Engine owns the refinement loop. The document is exclusively its for
// the duration of a run: strategies and the verifier only ever see copies
// of section content, and the document is patched between iterations,
// never during concurrent task execution.
type Engine struct {
	logger      *logging.Logger
	workspace   *workspace.Service
	strategies  map[string]Strategy
	verifier    Verifier
	opts        global.RefineOptions
	runningDocs sync.Map       // map[string]bool - documents with a run in progress
	activeRuns  sync.WaitGroup // tracks active run goroutines for graceful shutdown
}

// New creates a refinement engine. The options value is resolved once
// here and reused for every run.
func New(logger *logging.Logger, ws *workspace.Service, surgical, regenerate Strategy, verifier Verifier, opts global.RefineOptions) *Engine {
	return &Engine{
		logger:    logger,
		workspace: ws,
		strategies: map[string]Strategy{
			global.ActionSurgicalEdit:      surgical,
			global.ActionRegenerateSection: regenerate,
		},
		verifier: verifier,
		opts:     opts.WithDefaults(),
	}
}

// Run starts a refinement run for a workspace document with a submitted
// task plan. With Wait set it blocks until the run completes; otherwise
// the run continues in the background and the caller polls refine_status.
// Only configuration errors (malformed document or plan, bad bounds) are
// returned; content-level failures always settle into a result.
func (e *Engine) Run(ctx context.Context, req *global.RunRequest) (*global.RunResponse, error) {
	if req.Document == "" {
		return nil, fmt.Errorf("document is required")
	}

	doc, err := e.workspace.LoadDocument(req.Document)
	if err != nil {
		return nil, err
	}

	plan, err := e.workspace.LoadPlan(req.Document)
	if err != nil {
		return nil, err
	}

	// Surface configuration errors before any iteration begins, even for
	// async runs
	if err := validateInputs(doc, plan, e.opts); err != nil {
		return nil, err
	}

	// One run per document at a time
	_, alreadyRunning := e.runningDocs.LoadOrStore(req.Document, true)
	if alreadyRunning {
		return &global.RunResponse{
			Document: req.Document,
			Message:  fmt.Sprintf("a run is already in progress for document: %s", req.Document),
		}, nil
	}

	runID := uuid.New().String()
	record := &global.RunRecord{
		RunID:     runID,
		Document:  req.Document,
		Mode:      planMode(plan),
		State:     global.RunStateRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.workspace.SaveRun(record); err != nil {
		e.runningDocs.Delete(req.Document)
		return nil, err
	}

	response := &global.RunResponse{
		RunID:    runID,
		Document: req.Document,
	}

	if req.Wait {
		response.Message = fmt.Sprintf("refining %d task(s) synchronously", len(plan.Tasks))
		e.activeRuns.Add(1)
		result := e.executeRun(ctx, runID, doc, plan, record)
		e.activeRuns.Done()
		e.runningDocs.Delete(req.Document)
		response.Result = result
	} else {
		response.Message = fmt.Sprintf("refinement of %d task(s) started", len(plan.Tasks))
		e.activeRuns.Add(1)
		go func() {
			defer e.activeRuns.Done()
			defer e.runningDocs.Delete(req.Document)
			// The MCP request context ends with the tool call; background
			// runs are bounded by their own wall-clock budget instead
			e.executeRun(context.Background(), runID, doc, plan, record)
		}()
	}

	return response, nil
}

// executeRun drives one run to completion and persists the outcome
// (shared between sync and async modes)
func (e *Engine) executeRun(ctx context.Context, runID string, doc *global.Document, plan *global.TaskPlan, record *global.RunRecord) *global.RefinementResult {
	collector := &Collector{}
	sink := MultiSink{collector, SinkFunc(e.logEvent)}

	result, history, err := e.Refine(ctx, runID, doc, plan, e.opts, sink)
	if err != nil {
		// Inputs were validated up front, so this is unexpected; settle
		// the record rather than leaving it running forever
		e.logger.Errorf("Run %s: refinement aborted: %v", runID, err)
		result = &global.RefinementResult{
			RunID:      runID,
			Document:   doc.Name,
			Content:    document.Render(doc),
			Status:     global.StatusBestEffort,
			Iterations: 0,
		}
	}

	now := time.Now().UTC()
	record.State = global.RunStateComplete
	record.FinishedAt = &now
	record.History = history
	record.Result = result

	if err := e.workspace.SaveRun(record); err != nil {
		e.logger.Errorf("Run %s: failed to save run record: %v", runID, err)
	}
	if err := e.workspace.SaveDocumentContent(doc.Name, result.Content); err != nil {
		e.logger.Errorf("Run %s: failed to save refined document: %v", runID, err)
	}

	e.logger.Infof("Run %s: %s (score %.2f, %d iteration(s), %d tokens)",
		runID, result.Status, result.FinalScore, result.Iterations, result.TokensUsed)
	return result
}

// logEvent mirrors the event stream into the log
func (e *Engine) logEvent(event global.RefinementEvent) {
	if event.Message != "" {
		e.logger.Debugf("Event %s: %s", event.Type, event.Message)
	} else {
		e.logger.Debugf("Event %s", event.Type)
	}
}

// Wait blocks until all active runs complete (used during shutdown)
func (e *Engine) Wait() {
	e.activeRuns.Wait()
}

// IsRunning reports whether any document has a run in progress
func (e *Engine) IsRunning() bool {
	running := false
	e.runningDocs.Range(func(_, _ interface{}) bool {
		running = true
		return false
	})
	return running
}

// planMode returns the plan's operation mode, defaulting to full-auto
func planMode(plan *global.TaskPlan) string {
	if plan.Mode == "" {
		return global.ModeFullAuto
	}
	return plan.Mode
}

// validateInputs checks everything that counts as a configuration error:
// the only failures surfaced to the caller before the loop starts.
func validateInputs(doc *global.Document, plan *global.TaskPlan, opts global.RefineOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := document.Validate(doc); err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("task plan is required")
	}
	if plan.Mode != "" && plan.Mode != global.ModeFullAuto && plan.Mode != global.ModeSemiAuto {
		return fmt.Errorf("unknown operation mode: %s", plan.Mode)
	}
	for i, t := range plan.Tasks {
		if t.Action != global.ActionSurgicalEdit && t.Action != global.ActionRegenerateSection {
			return fmt.Errorf("task %d: unknown action kind: %s", i, t.Action)
		}
		if document.SectionByID(doc, t.SectionID) == nil {
			return fmt.Errorf("task %d: unknown section: %s", i, t.SectionID)
		}
	}
	return nil
}

// Refine executes the refinement loop against a document and returns the
// terminal result plus the per-iteration convergence history. The sink
// may be nil. Errors are configuration errors only; every content-level
// failure is absorbed into the result.
func (e *Engine) Refine(ctx context.Context, runID string, doc *global.Document, plan *global.TaskPlan, opts global.RefineOptions, sink Sink) (*global.RefinementResult, []global.IterationRecord, error) {
	opts = opts.WithDefaults()
	if err := validateInputs(doc, plan, opts); err != nil {
		return nil, nil, err
	}

	mode := planMode(plan)
	start := time.Now()
	merged := mergeTasks(plan.Tasks)

	emit(sink, runID, global.RefinementEvent{
		Type:    global.EventRefinementStart,
		Message: fmt.Sprintf("%d task(s) across %d section(s), mode %s", len(plan.Tasks), len(merged), mode),
	})

	var history []global.IterationRecord

	// An empty task list short-circuits to a single trivial iteration
	if len(merged) == 0 {
		history = append(history, global.IterationRecord{Iteration: 0, Score: 1.0})
		emit(sink, runID, global.RefinementEvent{Type: global.EventIterationComplete, Score: 1.0})
		result := &global.RefinementResult{
			RunID:       runID,
			Document:    doc.Name,
			Content:     document.Render(doc),
			Status:      global.StatusAccepted,
			Termination: global.TerminationNoTasks,
			Iterations:  1,
			FinalScore:  1.0,
			DurationMs:  time.Since(start).Milliseconds(),
		}
		emit(sink, runID, global.RefinementEvent{Type: global.EventRefinementComplete, Score: 1.0, Message: result.Status})
		return result, history, nil
	}

	sectionIDs := make([]string, 0, len(merged))
	for _, m := range merged {
		sectionIDs = append(sectionIDs, m.SectionID)
	}

	locks := newLockRegistry(sectionIDs, opts.LockAfterEdits)
	tracker := newConvergenceTracker(opts.PlateauEpsilon)
	budget := newBudgetMonitor(opts.MaxTokens, time.Duration(opts.TimeoutMs)*time.Millisecond, start)
	threshold := opts.AcceptThresholds[mode]

	var termination string
	plateaued := false
	finalScore := 0.0
	iterations := 0

	for iteration := 0; ; iteration++ {
		if iteration >= opts.MaxIterations {
			termination = global.TerminationMaxIterations
			break
		}
		// The hard deadline is honored between iterations only: an
		// in-flight batch always finishes so no half-verified edits land
		if ctx.Err() != nil || budget.timeExceeded(time.Now()) {
			termination = global.TerminationTimeout
			break
		}
		batch := activeBatch(merged, locks)
		if len(batch) == 0 {
			termination = global.TerminationAllLocked
			break
		}

		emit(sink, runID, global.RefinementEvent{
			Type:      global.EventBatchStarted,
			Iteration: iteration,
			Message:   fmt.Sprintf("%d section(s)", len(batch)),
		})

		iterStart := time.Now()
		outcomes, patches := e.dispatchBatch(ctx, doc, batch, opts.MaxConcurrent)

		// Apply successful patches immutably; failed tasks leave the
		// prior content untouched
		for sectionID, content := range patches {
			doc = document.WithSectionContent(doc, sectionID, content)
		}

		tokens := 0
		for _, o := range outcomes {
			tokens += o.TokensUsed
		}
		score := aggregateScore(tracker, merged, outcomes)

		record := global.IterationRecord{
			Iteration:  iteration,
			Score:      score,
			Outcomes:   outcomes,
			TokensUsed: tokens,
			DurationMs: time.Since(iterStart).Milliseconds(),
		}
		history = append(history, record)
		budget.addTokens(tokens)

		var regressed []string
		plateaued, regressed = tracker.update(record)

		// Every dispatched section spent a repair slot, success or not
		for _, t := range batch {
			if locks.recordEdit(t.SectionID) {
				emit(sink, runID, global.RefinementEvent{
					Type:      global.EventSectionLocked,
					Iteration: iteration,
					SectionID: t.SectionID,
					Reason:    global.LockReasonMaxEdits,
				})
			}
		}
		// Regression locks immediately, regardless of edit count
		for _, sectionID := range regressed {
			if locks.lock(sectionID, global.LockReasonRegression) {
				emit(sink, runID, global.RefinementEvent{
					Type:      global.EventSectionLocked,
					Iteration: iteration,
					SectionID: sectionID,
					Reason:    global.LockReasonRegression,
				})
			}
		}

		if budget.tokenWarning() {
			emit(sink, runID, global.RefinementEvent{
				Type:       global.EventBudgetWarning,
				Iteration:  iteration,
				TokensUsed: budget.used(),
				Message:    fmt.Sprintf("token budget %d exceeded", opts.MaxTokens),
			})
		}

		emit(sink, runID, global.RefinementEvent{
			Type:       global.EventIterationComplete,
			Iteration:  iteration,
			Score:      score,
			TokensUsed: tokens,
		})
		emit(sink, runID, global.RefinementEvent{Type: global.EventBatchComplete, Iteration: iteration})

		iterations = iteration + 1
		finalScore = score

		if locks.allLocked() {
			termination = global.TerminationAllLocked
			break
		}
		if score >= threshold {
			termination = global.TerminationConverged
			break
		}
	}

	status := resolveStatus(finalScore, mode, termination, plateaued, opts)

	result := &global.RefinementResult{
		RunID:              runID,
		Document:           doc.Name,
		Content:            document.Render(doc),
		Status:             status,
		Termination:        termination,
		Iterations:         iterations,
		TokensUsed:         budget.used(),
		DurationMs:         time.Since(start).Milliseconds(),
		FinalScore:         finalScore,
		Locks:              locks.snapshot(),
		UnresolvedSections: unresolvedSections(locks, tracker, threshold),
	}

	emit(sink, runID, global.RefinementEvent{
		Type:    global.EventRefinementComplete,
		Score:   finalScore,
		Message: status,
	})

	return result, history, nil
}

// aggregateScore reduces the batch outcomes to one deterministic,
// order-independent score: the mean over all task-target sections of the
// latest verified score (current outcome first, then history, else zero).
func aggregateScore(tracker *convergenceTracker, merged []mergedTask, outcomes []global.TaskOutcome) float64 {
	byID := make(map[string]global.TaskOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.SectionID] = o
	}

	sum := 0.0
	for _, m := range merged {
		if o, ok := byID[m.SectionID]; ok && o.Verified {
			sum += o.Score
			continue
		}
		if score, ok := tracker.lastScore(m.SectionID); ok {
			sum += score
		}
		// Never-verified sections count as zero
	}
	return sum / float64(len(merged))
}

// unresolvedSections lists locked sections that never reached the accept
// threshold: their remaining tasks were dropped, not completed.
func unresolvedSections(locks *lockRegistry, tracker *convergenceTracker, threshold float64) []string {
	var unresolved []string
	for _, sectionID := range locks.lockedSections() {
		if score, ok := tracker.lastScore(sectionID); !ok || score < threshold {
			unresolved = append(unresolved, sectionID)
		}
	}
	return unresolved
}
