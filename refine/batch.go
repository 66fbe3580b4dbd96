/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import "github.com/PivotLLM/Refinery/global"

// mergedTask is one dispatch unit: all tasks targeting the same section
// collapsed into a single repair attempt carrying the union of their
// issues. Exactly one edit-count increment happens per section per
// iteration regardless of how many issues were raised against it.
type mergedTask struct {
	SectionID string
	Action    string
	Priority  string
	Issues    []global.Issue
	Anchors   *global.ContextAnchors
}

// priorityRank orders task priorities; lower is more urgent
func priorityRank(priority string) int {
	switch priority {
	case global.PriorityCritical:
		return 0
	case global.PriorityMajor:
		return 1
	default:
		return 2
	}
}

// mergeTasks groups tasks by target section, preserving first-appearance
// order. When tasks on one section disagree, the merged task takes the
// most urgent priority and the heavier action (regeneration wins over a
// surgical edit, since the whole section is rewritten anyway).
func mergeTasks(tasks []global.RefinementTask) []mergedTask {
	var order []string
	bySection := make(map[string]*mergedTask)

	for _, t := range tasks {
		m, ok := bySection[t.SectionID]
		if !ok {
			m = &mergedTask{
				SectionID: t.SectionID,
				Action:    t.Action,
				Priority:  t.Priority,
				Anchors:   t.Anchors,
			}
			bySection[t.SectionID] = m
			order = append(order, t.SectionID)
		}
		m.Issues = append(m.Issues, t.Issues...)
		if t.Action == global.ActionRegenerateSection {
			m.Action = global.ActionRegenerateSection
		}
		if priorityRank(t.Priority) < priorityRank(m.Priority) {
			m.Priority = t.Priority
		}
		if m.Anchors == nil && t.Anchors != nil {
			m.Anchors = t.Anchors
		}
	}

	out := make([]mergedTask, 0, len(order))
	for _, id := range order {
		out = append(out, *bySection[id])
	}
	return out
}

// activeBatch filters the merged tasks down to those whose target section
// is still unlocked. Tasks dropped here are never dispatched again; their
// sections are reported as unresolved in the final result.
func activeBatch(merged []mergedTask, locks *lockRegistry) []mergedTask {
	var active []mergedTask
	for _, m := range merged {
		if !locks.isLocked(m.SectionID) {
			active = append(active, m)
		}
	}
	return active
}
