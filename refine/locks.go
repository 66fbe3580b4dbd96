/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import (
	"sort"

	"github.com/PivotLLM/Refinery/global"
)

// lockRegistry tracks per-section edit attempts and lock flags. It is
// owned by the engine and mutated only between iterations, so it needs no
// synchronization. Locks are monotonic: once set they stay set for the
// remainder of the run.
type lockRegistry struct {
	lockAfter int
	state     map[string]*global.SectionLockInfo
}

func newLockRegistry(sectionIDs []string, lockAfter int) *lockRegistry {
	r := &lockRegistry{
		lockAfter: lockAfter,
		state:     make(map[string]*global.SectionLockInfo, len(sectionIDs)),
	}
	for _, id := range sectionIDs {
		r.state[id] = &global.SectionLockInfo{SectionID: id}
	}
	return r
}

func (r *lockRegistry) isLocked(sectionID string) bool {
	if s, ok := r.state[sectionID]; ok {
		return s.Locked
	}
	return false
}

// recordEdit counts one repair attempt (successful or not) against a
// section and locks it once the configured limit is reached. Returns true
// if this call locked the section.
func (r *lockRegistry) recordEdit(sectionID string) bool {
	s, ok := r.state[sectionID]
	if !ok {
		return false
	}
	s.EditCount++
	if !s.Locked && s.EditCount >= r.lockAfter {
		s.Locked = true
		s.Reason = global.LockReasonMaxEdits
		return true
	}
	return false
}

// lock forces a section locked regardless of edit count (regression
// trigger). Returns true if this call locked the section.
func (r *lockRegistry) lock(sectionID, reason string) bool {
	s, ok := r.state[sectionID]
	if !ok || s.Locked {
		return false
	}
	s.Locked = true
	s.Reason = reason
	return true
}

// allLocked reports whether every tracked section is locked
func (r *lockRegistry) allLocked() bool {
	for _, s := range r.state {
		if !s.Locked {
			return false
		}
	}
	return len(r.state) > 0
}

// lockedSections returns the identifiers of locked sections, sorted
func (r *lockRegistry) lockedSections() []string {
	var ids []string
	for id, s := range r.state {
		if s.Locked {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// snapshot returns the registry state for result reporting, sorted by
// section identifier
func (r *lockRegistry) snapshot() []global.SectionLockInfo {
	out := make([]global.SectionLockInfo, 0, len(r.state))
	for _, s := range r.state {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SectionID < out[j].SectionID })
	return out
}
