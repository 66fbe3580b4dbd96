/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PivotLLM/Refinery/document"
	"github.com/PivotLLM/Refinery/global"
)

// taskPlanSchemaName validates plan_put task arrays
const taskPlanSchemaName = "schemas/task_plan.json"

// sectionView summarizes one section for tool responses
type sectionView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Bytes    int    `json:"bytes"`
	Content  string `json:"content,omitempty"`
}

// documentView is the document_get / document_import response shape
type documentView struct {
	Name     string        `json:"name"`
	Title    string        `json:"title"`
	Sections []sectionView `json:"sections"`
}

func buildDocumentView(doc *global.Document, includeContent bool) *documentView {
	view := &documentView{
		Name:  doc.Name,
		Title: doc.Title,
	}
	for _, sec := range doc.Sections {
		sv := sectionView{
			ID:       sec.ID,
			Title:    sec.Title,
			Position: sec.Position,
			Bytes:    len(sec.Content),
		}
		if includeContent {
			sv.Content = sec.Content
		}
		view.Sections = append(view.Sections, sv)
	}
	return view
}

// Document tool handlers

func (s *Server) handleDocumentImport(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")
	path := mcp.ParseString(request, "path", "")

	s.logToolCall(global.ToolDocumentImport, map[string]string{"name": name, "path": path})

	if name == "" {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	if path == "" {
		return mcp.NewToolResultError("path parameter is required"), nil
	}

	doc, err := s.workspace.ImportDocument(name, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(buildDocumentView(doc, false))
}

func (s *Server) handleDocumentGet(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")
	includeContent := mcp.ParseBoolean(request, "include_content", false)

	s.logToolCall(global.ToolDocumentGet, map[string]string{"name": name})

	if name == "" {
		return mcp.NewToolResultError("name parameter is required"), nil
	}

	doc, err := s.workspace.LoadDocument(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(buildDocumentView(doc, includeContent))
}

func (s *Server) handleDocumentList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logToolCall(global.ToolDocumentList, nil)

	result, err := s.workspace.ListDocuments()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(result)
}

// Task plan tool handlers

func (s *Server) handlePlanPut(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docName := mcp.ParseString(request, "document", "")
	mode := mcp.ParseString(request, "mode", global.ModeFullAuto)
	tasksJSON := mcp.ParseString(request, "tasks", "")

	s.logToolCall(global.ToolPlanPut, map[string]string{"document": docName, "mode": mode})

	if docName == "" {
		return mcp.NewToolResultError("document parameter is required"), nil
	}
	if tasksJSON == "" {
		return mcp.NewToolResultError("tasks parameter is required"), nil
	}
	if mode != global.ModeFullAuto && mode != global.ModeSemiAuto {
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode: %s (valid: %s, %s)", mode, global.ModeFullAuto, global.ModeSemiAuto)), nil
	}

	doc, err := s.workspace.LoadDocument(docName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	validation, err := s.validator.ValidateJSONSchema([]byte(tasksJSON), taskPlanSchemaName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !validation.Valid {
		return mcp.NewToolResultError(fmt.Sprintf("invalid tasks: %s", joinStrings(validation.Errors, "; "))), nil
	}

	var tasks []global.RefinementTask
	if err := json.Unmarshal([]byte(tasksJSON), &tasks); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse tasks: %v", err)), nil
	}

	// Every task must target a real section
	for i, t := range tasks {
		if document.SectionByID(doc, t.SectionID) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("task %d: unknown section: %s", i, t.SectionID)), nil
		}
	}

	plan := &global.TaskPlan{
		Document: docName,
		Mode:     mode,
		Tasks:    tasks,
	}

	if err := s.workspace.SavePlan(plan); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(map[string]interface{}{
		"document": docName,
		"mode":     mode,
		"tasks":    len(tasks),
		"message":  "task plan stored",
	})
}

func (s *Server) handlePlanGet(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docName := mcp.ParseString(request, "document", "")

	s.logToolCall(global.ToolPlanGet, map[string]string{"document": docName})

	if docName == "" {
		return mcp.NewToolResultError("document parameter is required"), nil
	}

	plan, err := s.workspace.LoadPlan(docName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(plan)
}
