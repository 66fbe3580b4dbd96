/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package refine

import (
	"time"

	"github.com/PivotLLM/Refinery/global"
)

// Sink receives refinement events as they happen. The engine calls Emit
// synchronously at well-defined points and in strict temporal order;
// implementations must not block and cannot influence control flow.
type Sink interface {
	Emit(event global.RefinementEvent)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(event global.RefinementEvent)

// Emit implements Sink
func (f SinkFunc) Emit(event global.RefinementEvent) {
	f(event)
}

// MultiSink fans one event stream out to several sinks in order
type MultiSink []Sink

// Emit implements Sink
func (m MultiSink) Emit(event global.RefinementEvent) {
	for _, s := range m {
		s.Emit(event)
	}
}

// Collector is a Sink that records every event, for run records and tests
type Collector struct {
	Events []global.RefinementEvent
}

// Emit implements Sink
func (c *Collector) Emit(event global.RefinementEvent) {
	c.Events = append(c.Events, event)
}

// emit stamps and delivers one event; a nil sink discards it
func emit(sink Sink, runID string, event global.RefinementEvent) {
	if sink == nil {
		return
	}
	event.RunID = runID
	event.Timestamp = time.Now().UTC()
	sink.Emit(event)
}
