/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import "fmt"

// RefineOptions bounds a refinement run. The value is resolved once from
// configuration at run start and passed by value through the engine; no
// component reads ambient state.
//
// MaxTokens is advisory (crossing it emits budget_warning but does not
// stop the loop); TimeoutMs is a hard bound checked between iterations.
type RefineOptions struct {
	MaxIterations    int                `json:"max_iterations,omitempty"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	TimeoutMs        int                `json:"timeout_ms,omitempty"`
	LockAfterEdits   int                `json:"section_lock_after_edits,omitempty"`
	PlateauEpsilon   float64            `json:"plateau_epsilon,omitempty"`
	WarnMargin       float64            `json:"warn_margin,omitempty"`
	MaxConcurrent    int                `json:"max_concurrent,omitempty"`
	AcceptThresholds map[string]float64 `json:"accept_thresholds,omitempty"`
}

// WithDefaults returns a copy with defaults applied for zero values
func (o RefineOptions) WithDefaults() RefineOptions {
	result := o
	if result.MaxIterations == 0 {
		result.MaxIterations = DefaultMaxIterations
	}
	if result.MaxTokens == 0 {
		result.MaxTokens = DefaultMaxTokens
	}
	if result.TimeoutMs == 0 {
		result.TimeoutMs = DefaultTimeoutMs
	}
	if result.LockAfterEdits == 0 {
		result.LockAfterEdits = DefaultLockAfterEdits
	}
	if result.PlateauEpsilon == 0 {
		result.PlateauEpsilon = DefaultPlateauEpsilon
	}
	if result.WarnMargin == 0 {
		result.WarnMargin = DefaultWarnMargin
	}
	if result.MaxConcurrent == 0 {
		result.MaxConcurrent = DefaultMaxConcurrent
	}
	// Clone the map so callers can't mutate the source configuration
	thresholds := make(map[string]float64, 2)
	for mode, v := range o.AcceptThresholds {
		thresholds[mode] = v
	}
	result.AcceptThresholds = thresholds
	if _, ok := result.AcceptThresholds[ModeFullAuto]; !ok {
		result.AcceptThresholds[ModeFullAuto] = DefaultAcceptFullAuto
	}
	if _, ok := result.AcceptThresholds[ModeSemiAuto]; !ok {
		result.AcceptThresholds[ModeSemiAuto] = DefaultAcceptSemiAuto
	}
	return result
}

// Validate reports the first configuration error, if any. These are the
// only hard failures a refinement run can surface.
func (o RefineOptions) Validate() error {
	if o.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative: %d", o.MaxIterations)
	}
	if o.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative: %d", o.MaxTokens)
	}
	if o.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms cannot be negative: %d", o.TimeoutMs)
	}
	if o.LockAfterEdits < 0 {
		return fmt.Errorf("section_lock_after_edits cannot be negative: %d", o.LockAfterEdits)
	}
	if o.PlateauEpsilon < 0 {
		return fmt.Errorf("plateau_epsilon cannot be negative: %g", o.PlateauEpsilon)
	}
	if o.WarnMargin < 0 {
		return fmt.Errorf("warn_margin cannot be negative: %g", o.WarnMargin)
	}
	if o.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent cannot be negative: %d", o.MaxConcurrent)
	}
	for mode, threshold := range o.AcceptThresholds {
		if mode != ModeFullAuto && mode != ModeSemiAuto {
			return fmt.Errorf("unknown mode in accept_thresholds: %s", mode)
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("accept threshold for %s must be in [0,1]: %g", mode, threshold)
		}
	}
	return nil
}
