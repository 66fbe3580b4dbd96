/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package templates provides JSON schema validation for structured LLM
// responses and Go template processing for prompts and reports.
package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"

	"github.com/xeipuuv/gojsonschema"

	"github.com/PivotLLM/Refinery/logging"
)

// Validator validates JSON data against embedded schemas and processes
// prompt templates
type Validator struct {
	logger      *logging.Logger
	assets      fs.FS
	mu          sync.Mutex
	schemaCache map[string]*gojsonschema.Schema
}

// ValidationResult represents the result of a validation
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`     // User-friendly error messages
	RawErrors []string `json:"raw_errors,omitempty"` // Original error messages from validator
}

// New creates a new Validator reading schemas and templates from the
// given filesystem (the embedded docs/ai tree in production)
func New(logger *logging.Logger, assets fs.FS) *Validator {
	return &Validator{
		logger:      logger,
		assets:      assets,
		schemaCache: make(map[string]*gojsonschema.Schema),
	}
}

// ValidateJSON validates JSON data against a schema string
func (v *Validator) ValidateJSON(data []byte, schemaJSON string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	return buildResult(result), nil
}

// ValidateJSONSchema validates JSON data against a named schema file
// from the asset tree (e.g. "schemas/patch_response.json"). Parsed
// schemas are cached.
func (v *Validator) ValidateJSONSchema(data []byte, schemaName string) (*ValidationResult, error) {
	schema, err := v.loadSchema(schemaName)
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	return buildResult(result), nil
}

// loadSchema loads and caches a schema from the asset tree
func (v *Validator) loadSchema(schemaName string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.schemaCache[schemaName]; ok {
		return schema, nil
	}

	content, err := fs.ReadFile(v.assets, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", schemaName, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", schemaName, err)
	}

	v.schemaCache[schemaName] = schema
	return schema, nil
}

// buildResult converts a gojsonschema result to a ValidationResult
func buildResult(result *gojsonschema.Result) *ValidationResult {
	validationResult := &ValidationResult{
		Valid: result.Valid(),
	}

	if !result.Valid() {
		for _, desc := range result.Errors() {
			rawError := desc.String()
			validationResult.RawErrors = append(validationResult.RawErrors, rawError)
			validationResult.Errors = append(validationResult.Errors, formatValidationError(rawError))
		}
	}

	return validationResult
}

// formatValidationError converts technical validation errors to
// user-friendly messages
func formatValidationError(rawError string) string {
	// Common patterns from gojsonschema:
	// "(root): field is required" -> "Missing required field: field"
	// "field: Invalid type. Expected: string, given: number" -> "Field 'field': expected string, got number"

	if strings.Contains(rawError, "is required") {
		parts := strings.SplitN(rawError, ": ", 2)
		if len(parts) == 2 {
			fieldName := strings.TrimSuffix(parts[1], " is required")
			if strings.HasPrefix(parts[0], "(root).") {
				return fmt.Sprintf("Missing required field: %s (in %s)", fieldName, strings.TrimPrefix(parts[0], "(root)."))
			}
			return fmt.Sprintf("Missing required field: %s", fieldName)
		}
	}

	if strings.Contains(rawError, "Additional property") {
		parts := strings.SplitN(rawError, "Additional property ", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("Unexpected field: %s (not allowed by schema)", strings.TrimSuffix(parts[1], " is not allowed"))
		}
	}

	if strings.Contains(rawError, "Invalid type") {
		parts := strings.SplitN(rawError, ": Invalid type. ", 2)
		if len(parts) == 2 {
			field := parts[0]
			if field == "(root)" {
				field = "root object"
			}
			typeInfo := strings.ReplaceAll(parts[1], "Expected: ", "expected ")
			typeInfo = strings.ReplaceAll(typeInfo, ", given: ", ", got ")
			return fmt.Sprintf("Field '%s': %s", field, typeInfo)
		}
	}

	if strings.Contains(rawError, "must be one of the following") {
		parts := strings.SplitN(rawError, ": ", 2)
		if len(parts) == 2 {
			field := parts[0]
			if field == "(root)" {
				field = "root value"
			}
			return fmt.Sprintf("Field '%s': %s", field, parts[1])
		}
	}

	if strings.HasPrefix(rawError, "(root): ") {
		return strings.TrimPrefix(rawError, "(root): ")
	}
	if strings.HasPrefix(rawError, "(root).") {
		return strings.TrimPrefix(rawError, "(root).")
	}

	return rawError
}

// PopulateTemplate populates a Go template with data
func (v *Validator) PopulateTemplate(templateContent string, data interface{}) (string, error) {
	tmpl, err := template.New("template").Funcs(templateFuncs()).Parse(templateContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// PopulateTemplateFile populates a named Go template from the asset tree
// (e.g. "prompts/surgical.md") with data
func (v *Validator) PopulateTemplateFile(templateName string, data interface{}) (string, error) {
	content, err := fs.ReadFile(v.assets, templateName)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", templateName, err)
	}

	return v.PopulateTemplate(string(content), data)
}

// templateFuncs returns custom template functions
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) string {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(data)
		},
		"jsonCompact": func(v interface{}) string {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(data)
		},
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join":  strings.Join,
		"default": func(def, value interface{}) interface{} {
			if value == nil {
				return def
			}
			if s, ok := value.(string); ok && s == "" {
				return def
			}
			return value
		},
	}
}

// ExtractJSON extracts JSON from a response that may be wrapped in
// markdown code fences or surrounded by prose. It returns the innermost
// valid JSON value, or the original string if none is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if extracted := extractFromCodeFence(response); extracted != "" {
		return extracted
	}

	firstBrace := strings.Index(response, "{")
	firstBracket := strings.Index(response, "[")

	if firstBrace != -1 && (firstBracket == -1 || firstBrace < firstBracket) {
		if extracted := extractBalanced(response, '{', '}'); extracted != "" {
			return extracted
		}
		if extracted := extractBalanced(response, '[', ']'); extracted != "" {
			return extracted
		}
	} else if firstBracket != -1 {
		if extracted := extractBalanced(response, '[', ']'); extracted != "" {
			return extracted
		}
		if extracted := extractBalanced(response, '{', '}'); extracted != "" {
			return extracted
		}
	}

	return response
}

// extractFromCodeFence extracts JSON from markdown code fences like
// ```json\n{...}\n```
func extractFromCodeFence(response string) string {
	patterns := []string{"```json\n", "```json\r\n", "```\n{", "```\r\n{"}

	for _, pattern := range patterns {
		startIdx := strings.Index(response, pattern)
		if startIdx == -1 {
			continue
		}

		contentStart := startIdx + len(pattern)
		if strings.HasSuffix(pattern, "{") {
			contentStart-- // Include the opening brace
		}

		remaining := response[contentStart:]
		endIdx := strings.Index(remaining, "```")
		if endIdx == -1 {
			continue
		}

		content := strings.TrimSpace(remaining[:endIdx])

		var js json.RawMessage
		if json.Unmarshal([]byte(content), &js) == nil {
			return content
		}
	}

	return ""
}

// extractBalanced finds the first valid JSON value delimited by the
// given open/close characters
func extractBalanced(response string, open, close byte) string {
	first := strings.IndexByte(response, open)
	if first == -1 {
		return ""
	}

	last := strings.LastIndexByte(response, close)
	if last == -1 || last <= first {
		return ""
	}

	// Fast path: first opener to last closer is the common case of
	// clean JSON with optional prose around it
	candidate := response[first : last+1]
	var js json.RawMessage
	if json.Unmarshal([]byte(candidate), &js) == nil {
		return candidate
	}

	// Fallback: walk the closers to find the first valid value, which
	// handles trailing garbage or multiple JSON values
	for i := first; i < len(response); i++ {
		if response[i] == close {
			candidate := response[first : i+1]
			if json.Unmarshal([]byte(candidate), &js) == nil {
				return candidate
			}
		}
	}

	return ""
}
