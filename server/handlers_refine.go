/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PivotLLM/Refinery/global"
)

// Refinement tool handlers

func (s *Server) handleRefineRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docName := mcp.ParseString(request, "document", "")
	wait := mcp.ParseBoolean(request, "wait", false)

	s.logToolCall(global.ToolRefineRun, map[string]string{"document": docName})

	if docName == "" {
		return mcp.NewToolResultError("document parameter is required"), nil
	}

	response, err := s.engine.Run(ctx, &global.RunRequest{
		Document: docName,
		Wait:     wait,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(response)
}

// statusView is the refine_status response shape
type statusView struct {
	RunID      string  `json:"run_id"`
	Document   string  `json:"document"`
	Mode       string  `json:"mode"`
	State      string  `json:"state"`
	StartedAt  string  `json:"started_at"`
	FinishedAt string  `json:"finished_at,omitempty"`
	Status     string  `json:"status,omitempty"`
	Final      bool    `json:"final"`
	FinalScore float64 `json:"final_score,omitempty"`
	Iterations int     `json:"iterations,omitempty"`
	TokensUsed int     `json:"tokens_used,omitempty"`
}

func (s *Server) handleRefineStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")
	docName := mcp.ParseString(request, "document", "")

	s.logToolCall(global.ToolRefineStatus, map[string]string{"run_id": runID, "document": docName})

	var record *global.RunRecord
	var err error
	switch {
	case runID != "":
		record, err = s.workspace.LoadRun(runID)
	case docName != "":
		record, err = s.workspace.LatestRunForDocument(docName)
	default:
		return mcp.NewToolResultError("run_id or document parameter is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view := &statusView{
		RunID:     record.RunID,
		Document:  record.Document,
		Mode:      record.Mode,
		State:     record.State,
		StartedAt: record.StartedAt.Format(time.RFC3339),
		Final:     record.State == global.RunStateComplete,
	}
	if record.FinishedAt != nil {
		view.FinishedAt = record.FinishedAt.Format(time.RFC3339)
	}
	if record.Result != nil {
		view.Status = record.Result.Status
		view.FinalScore = record.Result.FinalScore
		view.Iterations = record.Result.Iterations
		view.TokensUsed = record.Result.TokensUsed
	}

	return createJSONResult(view)
}

func (s *Server) handleRefineResult(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")
	includeContent := mcp.ParseBoolean(request, "include_content", true)

	s.logToolCall(global.ToolRefineResult, map[string]string{"run_id": runID})

	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	record, err := s.workspace.LoadRun(runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if record.State != global.RunStateComplete || record.Result == nil {
		return mcp.NewToolResultError("run has not completed yet - poll refine_status"), nil
	}

	result := *record.Result
	if !includeContent {
		result.Content = ""
	}

	return createJSONResult(map[string]interface{}{
		"result":  &result,
		"history": record.History,
	})
}
