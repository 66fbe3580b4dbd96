/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import (
	"math"
	"sort"

	"github.com/PivotLLM/Refinery/global"
)

// convergenceTracker watches the per-iteration aggregate scores for
// plateau and the per-section verification scores for regression. It is
// fed exactly one IterationRecord per iteration, in order.
type convergenceTracker struct {
	epsilon       float64
	aggregates    []float64
	sectionScores map[string]float64 // last verified score per edited section
}

func newConvergenceTracker(epsilon float64) *convergenceTracker {
	return &convergenceTracker{
		epsilon:       epsilon,
		sectionScores: make(map[string]float64),
	}
}

// update ingests one iteration record. It returns whether the aggregate
// score has plateaued (the last two deltas both below epsilon) and which
// sections regressed: a verified score strictly lower than the score from
// the previous iteration in which that section was edited.
func (t *convergenceTracker) update(record global.IterationRecord) (plateaued bool, regressed []string) {
	for _, o := range record.Outcomes {
		if !o.Verified {
			// Score unknown: assume no improvement, keep the prior score
			continue
		}
		if prev, ok := t.sectionScores[o.SectionID]; ok && o.Score < prev {
			regressed = append(regressed, o.SectionID)
		}
		t.sectionScores[o.SectionID] = o.Score
	}
	sort.Strings(regressed)

	t.aggregates = append(t.aggregates, record.Score)
	n := len(t.aggregates)
	if n >= 3 {
		d1 := math.Abs(t.aggregates[n-1] - t.aggregates[n-2])
		d2 := math.Abs(t.aggregates[n-2] - t.aggregates[n-3])
		plateaued = d1 < t.epsilon && d2 < t.epsilon
	}
	return plateaued, regressed
}

// lastScore returns the most recent verified score for a section, if any
func (t *convergenceTracker) lastScore(sectionID string) (float64, bool) {
	score, ok := t.sectionScores[sectionID]
	return score, ok
}
