/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PivotLLM/Refinery/global"
)

// Helper function to create JSON tool results safely
func createJSONResult(data interface{}) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return mcp.NewToolResultError("Failed to create JSON result"), nil
	}
	return result, nil
}

// logToolCall logs an MCP tool invocation at INFO level
func (s *Server) logToolCall(toolName string, params map[string]string) {
	if len(params) == 0 {
		s.logger.Infof("Tool %s called", toolName)
		return
	}
	// Build params string
	var parts []string
	for k, v := range params {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if len(parts) == 0 {
		s.logger.Infof("Tool %s called", toolName)
	} else {
		s.logger.Infof("Tool %s called: %s", toolName, joinStrings(parts, ", "))
	}
}

// joinStrings joins string slice with separator (avoiding strings import)
func joinStrings(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += sep + parts[i]
	}
	return result
}

// Misc tool handlers

func (s *Server) handleLLMList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logToolCall(global.ToolLLMList, nil)
	return createJSONResult(s.llm.ListLLMs())
}

func (s *Server) handleReportGenerate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")

	s.logToolCall(global.ToolReportGenerate, map[string]string{"run_id": runID})

	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	record, err := s.workspace.LoadRun(runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.reporter.Generate(record)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := s.workspace.SaveReport(runID, report)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(map[string]interface{}{
		"run_id": runID,
		"path":   path,
		"report": report,
	})
}
