/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import (
	"testing"

	"github.com/PivotLLM/Refinery/global"
)

func record(score float64, outcomes ...global.TaskOutcome) global.IterationRecord {
	return global.IterationRecord{Score: score, Outcomes: outcomes}
}

func verified(sectionID string, score float64) global.TaskOutcome {
	return global.TaskOutcome{SectionID: sectionID, Success: true, Verified: true, Score: score}
}

func TestConvergenceTrackerPlateau(t *testing.T) {
	tracker := newConvergenceTracker(0.01)

	if plateaued, _ := tracker.update(record(0.50)); plateaued {
		t.Error("plateau with one aggregate")
	}
	if plateaued, _ := tracker.update(record(0.505)); plateaued {
		t.Error("plateau with two aggregates")
	}
	// Both deltas below epsilon
	if plateaued, _ := tracker.update(record(0.508)); !plateaued {
		t.Error("expected plateau: last two deltas both below epsilon")
	}
	// A real jump clears the plateau
	if plateaued, _ := tracker.update(record(0.70)); plateaued {
		t.Error("plateau reported after a large delta")
	}
}

func TestConvergenceTrackerPlateauNeedsBothDeltas(t *testing.T) {
	tracker := newConvergenceTracker(0.01)
	tracker.update(record(0.20))
	tracker.update(record(0.50))
	// Second delta tiny, first delta large: not a plateau yet
	if plateaued, _ := tracker.update(record(0.505)); plateaued {
		t.Error("plateau requires the last two deltas, not one")
	}
	if plateaued, _ := tracker.update(record(0.508)); !plateaued {
		t.Error("expected plateau once both recent deltas are small")
	}
}

func TestConvergenceTrackerRegression(t *testing.T) {
	tracker := newConvergenceTracker(0.01)

	_, regressed := tracker.update(record(0.8, verified("s01-a", 0.8)))
	if len(regressed) != 0 {
		t.Errorf("regressed = %v on first verification, want none", regressed)
	}

	// Equal score is not a regression; strictly lower is
	_, regressed = tracker.update(record(0.8, verified("s01-a", 0.8)))
	if len(regressed) != 0 {
		t.Errorf("regressed = %v on equal score, want none", regressed)
	}

	_, regressed = tracker.update(record(0.7, verified("s01-a", 0.7), verified("s02-b", 0.9)))
	if len(regressed) != 1 || regressed[0] != "s01-a" {
		t.Errorf("regressed = %v, want [s01-a]", regressed)
	}

	// The regressed score becomes the new baseline
	score, ok := tracker.lastScore("s01-a")
	if !ok || score != 0.7 {
		t.Errorf("lastScore(s01-a) = %v, %v, want 0.7, true", score, ok)
	}
}

func TestConvergenceTrackerSkipsUnverified(t *testing.T) {
	tracker := newConvergenceTracker(0.01)
	tracker.update(record(0.8, verified("s01-a", 0.8)))

	// A failed (unverified) attempt keeps the prior score and never
	// counts as regression
	_, regressed := tracker.update(record(0.8, global.TaskOutcome{SectionID: "s01-a", Success: false}))
	if len(regressed) != 0 {
		t.Errorf("regressed = %v for unverified outcome, want none", regressed)
	}
	score, ok := tracker.lastScore("s01-a")
	if !ok || score != 0.8 {
		t.Errorf("lastScore(s01-a) = %v, %v, want 0.8, true", score, ok)
	}

	if _, ok := tracker.lastScore("s99-never"); ok {
		t.Error("lastScore for an untracked section should report no score")
	}
}

func TestConvergenceTrackerSortsRegressed(t *testing.T) {
	tracker := newConvergenceTracker(0.01)
	tracker.update(record(0.9, verified("s02-b", 0.9), verified("s01-a", 0.9)))
	_, regressed := tracker.update(record(0.5, verified("s02-b", 0.5), verified("s01-a", 0.5)))
	if len(regressed) != 2 || regressed[0] != "s01-a" || regressed[1] != "s02-b" {
		t.Errorf("regressed = %v, want [s01-a s02-b]", regressed)
	}
}
