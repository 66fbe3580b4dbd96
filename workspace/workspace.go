/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/PivotLLM/Refinery/document"
	"github.com/PivotLLM/Refinery/global"
	"github.com/PivotLLM/Refinery/logging"
)

// Service provides workspace storage for documents, task plans, and run
// records. Everything lives under the configured workspace directory as
// plain files: documents as markdown, plans and runs as JSON.
type Service struct {
	workspaceDir string
	logger       *logging.Logger
}

// Option is a functional option for configuring the workspace service
type Option func(*Service)

// WithWorkspaceDir sets the workspace root directory
func WithWorkspaceDir(dir string) Option {
	return func(s *Service) {
		s.workspaceDir = dir
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// DocumentInfo is returned by List operations
type DocumentInfo struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	Sections  int    `json:"sections"`
	UpdatedAt string `json:"updated_at"`
}

// DocumentListResult is the response for document_list
type DocumentListResult struct {
	Documents []*DocumentInfo `json:"documents"`
	Total     int             `json:"total"`
}

// documentNameRegex validates workspace document names
var documentNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// NewService creates a new workspace service
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validateDocumentName validates a workspace document name
func validateDocumentName(name string) error {
	if name == "" {
		return fmt.Errorf("document name cannot be empty")
	}
	if !documentNameRegex.MatchString(name) {
		return fmt.Errorf("invalid document name: must be alphanumeric with hyphens or underscores, cannot start with . or -")
	}
	return nil
}

// documentPath returns the path to a document's markdown file
func (s *Service) documentPath(name string) string {
	return filepath.Join(s.workspaceDir, global.DocumentsDirName, name+".md")
}

// planPath returns the path to a document's task plan file
func (s *Service) planPath(name string) string {
	return filepath.Join(s.workspaceDir, global.PlansDirName, name+".json")
}

// runPath returns the path to a run record file
func (s *Service) runPath(runID string) string {
	return filepath.Join(s.workspaceDir, global.RunsDirName, runID+".json")
}

// ReportPath returns the path a generated report is written to
func (s *Service) ReportPath(runID string) string {
	return filepath.Join(s.workspaceDir, global.ReportsDirName, runID+".md")
}

// withLock executes a function while holding a file-level lock. Run
// records are written by background run goroutines and read by status
// polls, possibly from another process sharing the workspace.
func (s *Service) withLock(path string, fn func() error) error {
	if err := global.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	return fn()
}

// ImportDocument brings an external file into the workspace under the
// given name, converting non-markdown formats along the way, and returns
// the parsed document.
func (s *Service) ImportDocument(name, sourcePath string) (*global.Document, error) {
	if err := validateDocumentName(name); err != nil {
		return nil, err
	}
	if sourcePath == "" {
		return nil, fmt.Errorf("source path cannot be empty")
	}

	text, err := document.LoadFile(sourcePath)
	if err != nil {
		return nil, err
	}

	doc, err := document.Parse(name, text)
	if err != nil {
		return nil, err
	}

	if err := s.SaveDocumentContent(name, document.Render(doc)); err != nil {
		return nil, err
	}

	s.logger.Debugf("Imported document %s from %s (%d sections)", name, sourcePath, len(doc.Sections))
	return doc, nil
}

// LoadDocument loads and parses a workspace document
func (s *Service) LoadDocument(name string) (*global.Document, error) {
	if err := validateDocumentName(name); err != nil {
		return nil, err
	}

	path := s.documentPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document not found: %s", name)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc, err := document.Parse(name, string(data))
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(path); err == nil {
		doc.UpdatedAt = info.ModTime().UTC()
	}

	return doc, nil
}

// SaveDocumentContent writes a document's markdown to the workspace
func (s *Service) SaveDocumentContent(name, content string) error {
	if err := validateDocumentName(name); err != nil {
		return err
	}

	path := s.documentPath(name)
	return s.withLock(path, func() error {
		if err := global.AtomicWrite(path, []byte(content)); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		return nil
	})
}

// DocumentExists checks whether a document is present in the workspace
func (s *Service) DocumentExists(name string) bool {
	if err := validateDocumentName(name); err != nil {
		return false
	}
	return global.FileExists(s.documentPath(name))
}

// ListDocuments lists all workspace documents, most recently updated first
func (s *Service) ListDocuments() (*DocumentListResult, error) {
	dir := filepath.Join(s.workspaceDir, global.DocumentsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &DocumentListResult{Documents: []*DocumentInfo{}}, nil
		}
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var docs []*DocumentInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")

		doc, err := s.LoadDocument(name)
		if err != nil {
			s.logger.Warnf("Failed to load document %s: %v", name, err)
			continue
		}

		docs = append(docs, &DocumentInfo{
			Name:      name,
			Title:     doc.Title,
			Sections:  len(doc.Sections),
			UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
		})
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt > docs[j].UpdatedAt
	})

	if docs == nil {
		docs = []*DocumentInfo{}
	}

	s.logger.Debugf("Listed %d documents", len(docs))
	return &DocumentListResult{Documents: docs, Total: len(docs)}, nil
}

// SavePlan stores the task plan for a document, replacing any prior plan
func (s *Service) SavePlan(plan *global.TaskPlan) error {
	if plan == nil {
		return fmt.Errorf("plan cannot be nil")
	}
	if err := validateDocumentName(plan.Document); err != nil {
		return err
	}

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	path := s.planPath(plan.Document)
	return s.withLock(path, func() error {
		if err := global.AtomicWrite(path, data); err != nil {
			return fmt.Errorf("failed to write plan: %w", err)
		}
		return nil
	})
}

// LoadPlan loads the task plan for a document
func (s *Service) LoadPlan(name string) (*global.TaskPlan, error) {
	if err := validateDocumentName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.planPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no task plan for document: %s", name)
		}
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	var plan global.TaskPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.Tasks == nil {
		plan.Tasks = []global.RefinementTask{}
	}

	return &plan, nil
}

// SaveRun persists a run record atomically under a file lock
func (s *Service) SaveRun(record *global.RunRecord) error {
	if record == nil || record.RunID == "" {
		return fmt.Errorf("run record requires a run ID")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	path := s.runPath(record.RunID)
	return s.withLock(path, func() error {
		if err := global.AtomicWrite(path, data); err != nil {
			return fmt.Errorf("failed to write run record: %w", err)
		}
		return nil
	})
}

// LoadRun loads a run record by ID
func (s *Service) LoadRun(runID string) (*global.RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}

	path := s.runPath(runID)
	var record global.RunRecord
	err := s.withLock(path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("run not found: %s", runID)
			}
			return fmt.Errorf("failed to read run record: %w", err)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to parse run record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// LatestRunForDocument finds the most recently started run for a
// document, if any
func (s *Service) LatestRunForDocument(name string) (*global.RunRecord, error) {
	if err := validateDocumentName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.workspaceDir, global.RunsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no runs for document: %s", name)
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var latest *global.RunRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := s.LoadRun(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warnf("Failed to load run %s: %v", entry.Name(), err)
			continue
		}
		if record.Document != name {
			continue
		}
		if latest == nil || record.StartedAt.After(latest.StartedAt) {
			latest = record
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("no runs for document: %s", name)
	}
	return latest, nil
}

// SaveReport writes a generated run report and returns its path
func (s *Service) SaveReport(runID, content string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}

	path := s.ReportPath(runID)
	if err := global.EnsureDir(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}
	if err := global.AtomicWrite(path, []byte(content)); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	s.logger.Debugf("Saved report for run %s", runID)
	return path, nil
}
