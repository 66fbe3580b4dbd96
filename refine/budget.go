/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import "time"

// budgetMonitor tracks cumulative token spend and elapsed wall-clock time
// against the configured ceilings. The token ceiling is advisory: crossing
// it raises a one-shot warning but never stops the loop. The time ceiling
// is hard: once the deadline passes no further iteration is started.
//
// Only the engine touches the monitor, strictly between iterations, so no
// synchronization is needed.
type budgetMonitor struct {
	maxTokens int
	deadline  time.Time
	tokens    int
	warned    bool
}

func newBudgetMonitor(maxTokens int, timeout time.Duration, start time.Time) *budgetMonitor {
	return &budgetMonitor{
		maxTokens: maxTokens,
		deadline:  start.Add(timeout),
	}
}

// addTokens records spend from a completed batch
func (b *budgetMonitor) addTokens(n int) {
	b.tokens += n
}

// used returns cumulative token spend
func (b *budgetMonitor) used() int {
	return b.tokens
}

// tokenWarning reports the first crossing of the advisory token ceiling.
// Subsequent calls return false so the warning event fires exactly once.
func (b *budgetMonitor) tokenWarning() bool {
	if b.warned || b.maxTokens <= 0 || b.tokens < b.maxTokens {
		return false
	}
	b.warned = true
	return true
}

// timeExceeded reports whether the hard wall-clock deadline has passed
func (b *budgetMonitor) timeExceeded(now time.Time) bool {
	return !now.Before(b.deadline)
}
