/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package reporting generates human-readable run reports from refinement
// run records.
package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
)

// runReportTemplateName is the embedded report template
const runReportTemplateName = "templates/run-report.md"

// Reporter renders run records through markdown templates
type Reporter struct {
	logger        *logging.Logger
	assets        fs.FS
	mu            sync.Mutex
	templateCache map[string]*template.Template
}

// New creates a new Reporter reading templates from the given filesystem
// (the embedded docs/ai tree in production)
func New(logger *logging.Logger, assets fs.FS) *Reporter {
	return &Reporter{
		logger:        logger,
		assets:        assets,
		templateCache: make(map[string]*template.Template),
	}
}

// reportView is the data handed to the report template
type reportView struct {
	Record       *global.RunRecord
	Result       *global.RefinementResult
	GeneratedAt  string
	StartedAt    string
	FinishedAt   string
	Duration     string
	ScoreHistory []iterationView
}

// iterationView summarizes one iteration for the template
type iterationView struct {
	Iteration  int
	Score      float64
	Sections   int
	Failures   int
	TokensUsed int
	DurationMs int64
}

// Generate renders the report for a completed run
func (r *Reporter) Generate(record *global.RunRecord) (string, error) {
	if record == nil {
		return "", fmt.Errorf("run record is required")
	}
	if record.State != global.RunStateComplete || record.Result == nil {
		return "", fmt.Errorf("run %s has not completed", record.RunID)
	}

	tmpl, err := r.loadTemplate(runReportTemplateName)
	if err != nil {
		return "", err
	}

	view := &reportView{
		Record:      record,
		Result:      record.Result,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		StartedAt:   record.StartedAt.Format(time.RFC3339),
		Duration:    formatDurationMs(record.Result.DurationMs),
	}
	if record.FinishedAt != nil {
		view.FinishedAt = record.FinishedAt.Format(time.RFC3339)
	}

	for _, rec := range record.History {
		iv := iterationView{
			Iteration:  rec.Iteration,
			Score:      rec.Score,
			Sections:   len(rec.Outcomes),
			TokensUsed: rec.TokensUsed,
			DurationMs: rec.DurationMs,
		}
		for _, o := range rec.Outcomes {
			if !o.Success {
				iv.Failures++
			}
		}
		view.ScoreHistory = append(view.ScoreHistory, iv)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	r.logger.Debugf("Generated report for run %s (%d bytes)", record.RunID, buf.Len())
	return buf.String(), nil
}

// loadTemplate loads and caches a parsed template from the asset tree
func (r *Reporter) loadTemplate(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl, ok := r.templateCache[name]; ok {
		return tmpl, nil
	}

	content, err := fs.ReadFile(r.assets, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load report template: %w", err)
	}

	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}

	r.templateCache[name] = tmpl
	return tmpl, nil
}

// templateFuncs returns custom template functions
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"json": func(v interface{}) string {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(data)
		},
		"percent": func(f float64) string {
			return fmt.Sprintf("%.0f%%", f*100)
		},
		"score": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
	}
}

// formatDurationMs renders a millisecond duration compactly
func formatDurationMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(time.Second / 10).String()
}
