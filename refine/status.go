/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import "github.com/PivotLLM/Refinery/global"

// resolveStatus maps the final aggregate score, the operation mode, and
// the reason the loop stopped into one of the four terminal
// classifications.
//
// A score inside the warn margin below the threshold is usable but
// flagged (accepted_warning) - unless the run plateaued while exhausting
// its budgets, in which case further spend was going nowhere and the
// honest answer is best_effort. Below the margin, semi-auto escalates to
// human review; full-auto never escalates.
func resolveStatus(finalScore float64, mode, termination string, plateaued bool, opts global.RefineOptions) string {
	threshold, ok := opts.AcceptThresholds[mode]
	if !ok {
		threshold = opts.AcceptThresholds[global.ModeFullAuto]
	}

	if finalScore >= threshold {
		return global.StatusAccepted
	}

	exhausted := termination == global.TerminationMaxIterations || termination == global.TerminationTimeout

	if finalScore >= threshold-opts.WarnMargin && !(plateaued && exhausted) {
		return global.StatusAcceptedWarning
	}

	if mode == global.ModeSemiAuto {
		return global.StatusEscalated
	}
	return global.StatusBestEffort
}
