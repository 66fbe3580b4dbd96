/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
)

const testMarkdown = "# Report\n\n## Intro\n\nalpha\n\n## Body\n\nbeta\n"

func setupTestService(t *testing.T) (*Service, string) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "workspace_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(tempDir)
	})

	logger, err := logging.New(filepath.Join(tempDir, "test.log"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	service := NewService(
		WithWorkspaceDir(filepath.Join(tempDir, "workspace")),
		WithLogger(logger),
	)
	return service, tempDir
}

func TestValidateDocumentName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"report", true},
		{"my-doc_2", true},
		{"9lives", true},
		{"", false},
		{"-leading-dash", false},
		{".hidden", false},
		{"has space", false},
		{"path/traversal", false},
		{"..", false},
	}

	for _, tt := range tests {
		err := validateDocumentName(tt.name)
		if tt.valid && err != nil {
			t.Errorf("validateDocumentName(%q) = %v, want nil", tt.name, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("validateDocumentName(%q) = nil, want error", tt.name)
		}
	}
}

func TestImportAndLoadDocument(t *testing.T) {
	service, tempDir := setupTestService(t)

	source := filepath.Join(tempDir, "source.md")
	if err := os.WriteFile(source, []byte(testMarkdown), 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}

	doc, err := service.ImportDocument("report", source)
	if err != nil {
		t.Fatalf("ImportDocument() error = %v", err)
	}
	if doc.Title != "Report" || len(doc.Sections) != 2 {
		t.Errorf("imported doc = title %q, %d sections", doc.Title, len(doc.Sections))
	}

	if !service.DocumentExists("report") {
		t.Error("DocumentExists() = false after import")
	}

	loaded, err := service.LoadDocument("report")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if loaded.Sections[0].ID != "s01-intro" || loaded.Sections[1].ID != "s02-body" {
		t.Errorf("loaded section IDs = %q, %q", loaded.Sections[0].ID, loaded.Sections[1].ID)
	}
	if loaded.Sections[1].Content != "beta" {
		t.Errorf("loaded content = %q, want beta", loaded.Sections[1].Content)
	}
}

func TestImportDocumentErrors(t *testing.T) {
	service, tempDir := setupTestService(t)

	if _, err := service.ImportDocument("bad name", "/tmp/x.md"); err == nil {
		t.Error("expected error for invalid document name")
	}
	if _, err := service.ImportDocument("doc", ""); err == nil {
		t.Error("expected error for empty source path")
	}
	if _, err := service.ImportDocument("doc", filepath.Join(tempDir, "missing.md")); err == nil {
		t.Error("expected error for nonexistent source file")
	}
}

func TestLoadDocumentNotFound(t *testing.T) {
	service, _ := setupTestService(t)

	_, err := service.LoadDocument("ghost")
	if err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestSaveDocumentContentOverwrites(t *testing.T) {
	service, _ := setupTestService(t)

	if err := service.SaveDocumentContent("report", testMarkdown); err != nil {
		t.Fatalf("SaveDocumentContent() error = %v", err)
	}

	updated := "# Report\n\n## Intro\n\nrevised alpha\n"
	if err := service.SaveDocumentContent("report", updated); err != nil {
		t.Fatalf("SaveDocumentContent() second write error = %v", err)
	}

	doc, err := service.LoadDocument("report")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Content != "revised alpha" {
		t.Errorf("doc after overwrite = %+v", doc.Sections)
	}
}

func TestListDocuments(t *testing.T) {
	service, _ := setupTestService(t)

	// Empty workspace lists cleanly
	result, err := service.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if result.Total != 0 || result.Documents == nil {
		t.Errorf("empty list = %+v", result)
	}

	if err := service.SaveDocumentContent("alpha", testMarkdown); err != nil {
		t.Fatalf("SaveDocumentContent() error = %v", err)
	}
	if err := service.SaveDocumentContent("beta", "## Only Section\n\ntext\n"); err != nil {
		t.Fatalf("SaveDocumentContent() error = %v", err)
	}

	result, err = service.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if result.Total != 2 || len(result.Documents) != 2 {
		t.Fatalf("list = %+v, want 2 documents", result)
	}
	names := map[string]bool{}
	for _, d := range result.Documents {
		names[d.Name] = true
	}
	if !names["alpha"] || !names["beta"] {
		t.Errorf("listed names = %v", names)
	}
}

func TestPlanRoundTrip(t *testing.T) {
	service, _ := setupTestService(t)

	plan := &global.TaskPlan{
		Document: "report",
		Mode:     global.ModeSemiAuto,
		Tasks: []global.RefinementTask{
			{
				SectionID: "s01-intro",
				Action:    global.ActionSurgicalEdit,
				Priority:  global.PriorityMajor,
				Issues:    []global.Issue{{Description: "too vague", Excerpt: "alpha"}},
			},
		},
	}

	if err := service.SavePlan(plan); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}
	if plan.CreatedAt.IsZero() {
		t.Error("SavePlan should stamp CreatedAt")
	}

	loaded, err := service.LoadPlan("report")
	if err != nil {
		t.Fatalf("LoadPlan() error = %v", err)
	}
	if loaded.Mode != global.ModeSemiAuto || len(loaded.Tasks) != 1 {
		t.Errorf("loaded plan = %+v", loaded)
	}
	if loaded.Tasks[0].Issues[0].Description != "too vague" {
		t.Errorf("loaded issue = %+v", loaded.Tasks[0].Issues[0])
	}

	// Saving again replaces the prior plan
	plan.Tasks = nil
	if err := service.SavePlan(plan); err != nil {
		t.Fatalf("SavePlan() replace error = %v", err)
	}
	loaded, err = service.LoadPlan("report")
	if err != nil {
		t.Fatalf("LoadPlan() after replace error = %v", err)
	}
	if loaded.Tasks == nil || len(loaded.Tasks) != 0 {
		t.Errorf("replaced plan tasks = %v, want empty non-nil slice", loaded.Tasks)
	}
}

func TestLoadPlanNotFound(t *testing.T) {
	service, _ := setupTestService(t)

	if _, err := service.LoadPlan("report"); err == nil {
		t.Error("expected error for missing plan")
	}
	if err := service.SavePlan(nil); err == nil {
		t.Error("SavePlan(nil) should fail")
	}
}

func TestRunRecordRoundTrip(t *testing.T) {
	service, _ := setupTestService(t)

	started := time.Now().UTC().Truncate(time.Second)
	record := &global.RunRecord{
		RunID:     "run-abc",
		Document:  "report",
		Mode:      global.ModeFullAuto,
		State:     global.RunStateRunning,
		StartedAt: started,
	}

	if err := service.SaveRun(record); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	loaded, err := service.LoadRun("run-abc")
	if err != nil {
		t.Fatalf("LoadRun() error = %v", err)
	}
	if loaded.Document != "report" || loaded.State != global.RunStateRunning {
		t.Errorf("loaded record = %+v", loaded)
	}
	if !loaded.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", loaded.StartedAt, started)
	}

	// Update to complete and reload
	finished := started.Add(time.Minute)
	record.State = global.RunStateComplete
	record.FinishedAt = &finished
	record.Result = &global.RefinementResult{
		RunID:      "run-abc",
		Document:   "report",
		Status:     global.StatusAccepted,
		FinalScore: 0.9,
		Iterations: 2,
	}
	if err := service.SaveRun(record); err != nil {
		t.Fatalf("SaveRun() update error = %v", err)
	}

	loaded, err = service.LoadRun("run-abc")
	if err != nil {
		t.Fatalf("LoadRun() after update error = %v", err)
	}
	if loaded.State != global.RunStateComplete || loaded.Result == nil {
		t.Fatalf("updated record = %+v", loaded)
	}
	if loaded.Result.Status != global.StatusAccepted || loaded.Result.FinalScore != 0.9 {
		t.Errorf("loaded result = %+v", loaded.Result)
	}

	if _, err := service.LoadRun("run-missing"); err == nil {
		t.Error("expected error for missing run")
	}
	if err := service.SaveRun(&global.RunRecord{}); err == nil {
		t.Error("SaveRun without run ID should fail")
	}
}

func TestLatestRunForDocument(t *testing.T) {
	service, _ := setupTestService(t)

	base := time.Now().UTC().Add(-time.Hour)
	runs := []*global.RunRecord{
		{RunID: "run-1", Document: "report", State: global.RunStateComplete, StartedAt: base},
		{RunID: "run-2", Document: "report", State: global.RunStateComplete, StartedAt: base.Add(10 * time.Minute)},
		{RunID: "run-3", Document: "other", State: global.RunStateComplete, StartedAt: base.Add(20 * time.Minute)},
	}
	for _, r := range runs {
		if err := service.SaveRun(r); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", r.RunID, err)
		}
	}

	latest, err := service.LatestRunForDocument("report")
	if err != nil {
		t.Fatalf("LatestRunForDocument() error = %v", err)
	}
	if latest.RunID != "run-2" {
		t.Errorf("latest = %s, want run-2", latest.RunID)
	}

	if _, err := service.LatestRunForDocument("unknown"); err == nil {
		t.Error("expected error for document with no runs")
	}
}

func TestSaveReport(t *testing.T) {
	service, _ := setupTestService(t)

	path, err := service.SaveReport("run-abc", "# Report\n\ncontent\n")
	if err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}
	if path != service.ReportPath("run-abc") {
		t.Errorf("path = %q, want %q", path, service.ReportPath("run-abc"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if string(data) != "# Report\n\ncontent\n" {
		t.Errorf("report content = %q", string(data))
	}

	if _, err := service.SaveReport("", "x"); err == nil {
		t.Error("SaveReport with empty run ID should fail")
	}
}
