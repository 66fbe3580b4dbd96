/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package templates

import (
	"strings"
	"testing"
	"testing/fstest"
)

const patchSchema = `{
	"type": "object",
	"required": ["success", "content", "diff_summary"],
	"additionalProperties": false,
	"properties": {
		"success": {"type": "boolean"},
		"content": {"type": "string"},
		"diff_summary": {"type": "string"},
		"reason": {"type": "string"}
	}
}`

func testAssets() fstest.MapFS {
	return fstest.MapFS{
		"schemas/patch_response.json": &fstest.MapFile{Data: []byte(patchSchema)},
		"prompts/greet.md":            &fstest.MapFile{Data: []byte("Hello, {{.Name}}!")},
	}
}

func TestValidateJSON(t *testing.T) {
	v := New(nil, testAssets())

	schema := `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"},
			"age": {"type": "integer"}
		}
	}`

	tests := []struct {
		name  string
		data  string
		valid bool
	}{
		{
			name:  "valid with required field",
			data:  `{"name": "John"}`,
			valid: true,
		},
		{
			name:  "valid with all fields",
			data:  `{"name": "John", "age": 30}`,
			valid: true,
		},
		{
			name:  "invalid missing required field",
			data:  `{"age": 30}`,
			valid: false,
		},
		{
			name:  "invalid wrong type",
			data:  `{"name": 123}`,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateJSON([]byte(tt.data), schema)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if result.Valid != tt.valid {
				t.Errorf("valid = %v, want %v; errors: %v", result.Valid, tt.valid, result.Errors)
			}
		})
	}
}

func TestValidateJSONSchema(t *testing.T) {
	v := New(nil, testAssets())

	result, err := v.ValidateJSONSchema([]byte(`{"success": true, "content": "fixed", "diff_summary": "reworded"}`), "schemas/patch_response.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid, errors: %v", result.Errors)
	}

	result, err = v.ValidateJSONSchema([]byte(`{"success": true}`), "schemas/patch_response.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid for missing required fields")
	}

	result, err = v.ValidateJSONSchema([]byte(`{"success": true, "content": "x", "diff_summary": "y", "extra": 1}`), "schemas/patch_response.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid for additional property")
	}

	if _, err = v.ValidateJSONSchema([]byte(`{}`), "schemas/missing.json"); err == nil {
		t.Error("expected error for unknown schema name")
	}
}

func TestValidateJSONSchemaCachesSchemas(t *testing.T) {
	assets := testAssets()
	v := New(nil, assets)

	if _, err := v.ValidateJSONSchema([]byte(`{"success": true, "content": "a", "diff_summary": "b"}`), "schemas/patch_response.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the backing file after first use must not matter: the
	// parsed schema is cached
	assets["schemas/patch_response.json"] = &fstest.MapFile{Data: []byte("not json")}
	result, err := v.ValidateJSONSchema([]byte(`{"success": true, "content": "a", "diff_summary": "b"}`), "schemas/patch_response.json")
	if err != nil {
		t.Fatalf("cached schema not used: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid from cached schema, errors: %v", result.Errors)
	}
}

func TestFormatValidationError(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "required field",
			raw:  "(root): success is required",
			want: "Missing required field: success",
		},
		{
			name: "additional property",
			raw:  "(root): Additional property extra is not allowed",
			want: "Unexpected field: extra (not allowed by schema)",
		},
		{
			name: "invalid type",
			raw:  "score: Invalid type. Expected: number, given: string",
			want: "Field 'score': expected number, got string",
		},
		{
			name: "enum violation",
			raw:  "action: action must be one of the following: \"surgical_edit\", \"regenerate_section\"",
			want: "Field 'action':",
		},
		{
			name: "unrecognized passes through",
			raw:  "something else entirely",
			want: "something else entirely",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatValidationError(tt.raw)
			if !strings.Contains(got, tt.want) {
				t.Errorf("formatValidationError(%q) = %q, want to contain %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPopulateTemplate(t *testing.T) {
	v := New(nil, testAssets())

	tests := []struct {
		name     string
		template string
		data     interface{}
		want     string
		wantErr  bool
	}{
		{
			name:     "simple",
			template: "Hello, {{.Name}}!",
			data:     map[string]string{"Name": "World"},
			want:     "Hello, World!",
		},
		{
			name:     "with truncate",
			template: "{{truncate .Text 5}}",
			data:     map[string]string{"Text": "Hello World"},
			want:     "Hello...",
		},
		{
			name:     "with json",
			template: "{{json .}}",
			data:     map[string]string{"key": "value"},
			want:     "{\n  \"key\": \"value\"\n}",
		},
		{
			name:     "with default - value present",
			template: "{{default \"N/A\" .Name}}",
			data:     map[string]string{"Name": "John"},
			want:     "John",
		},
		{
			name:     "with default - value empty",
			template: "{{default \"N/A\" .Name}}",
			data:     map[string]string{"Name": ""},
			want:     "N/A",
		},
		{
			name:     "invalid template",
			template: "{{.Invalid",
			data:     nil,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.PopulateTemplate(tt.template, tt.data)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if result != tt.want {
				t.Errorf("result = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestPopulateTemplateFile(t *testing.T) {
	v := New(nil, testAssets())

	result, err := v.PopulateTemplateFile("prompts/greet.md", map[string]string{"Name": "World"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Hello, World!" {
		t.Errorf("result = %q, want %q", result, "Hello, World!")
	}

	if _, err := v.PopulateTemplateFile("prompts/missing.md", nil); err == nil {
		t.Error("expected error for unknown template name")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON object",
			input:    `{"key": "value"}`,
			expected: `{"key": "value"}`,
		},
		{
			name:     "JSON with markdown code fence",
			input:    "```json\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "JSON with markdown code fence and extra text",
			input:    "Here is the result:\n```json\n{\"key\": \"value\"}\n```\nDone.",
			expected: `{"key": "value"}`,
		},
		{
			name:     "JSON with leading/trailing whitespace",
			input:    "   \n{\"key\": \"value\"}\n   ",
			expected: `{"key": "value"}`,
		},
		{
			name:     "nested JSON object",
			input:    "```\n{\"outer\": {\"inner\": \"value\"}}\n```",
			expected: `{"outer": {"inner": "value"}}`,
		},
		{
			name:     "JSON array",
			input:    "```json\n[1, 2, 3]\n```",
			expected: `[1, 2, 3]`,
		},
		{
			name:     "array of objects",
			input:    "Result:\n[{\"id\": 1}, {\"id\": 2}]",
			expected: `[{"id": 1}, {"id": 2}]`,
		},
		{
			name:     "no JSON - returns original",
			input:    "This is just plain text",
			expected: "This is just plain text",
		},
		{
			name:     "malformed JSON - returns original",
			input:    "{broken json",
			expected: "{broken json",
		},
		{
			name:     "complex response with explanation",
			input:    "I've assessed the revision.\n\n```json\n{\"score\": 0.85, \"issues_resolved\": 2}\n```\n\nLet me know if you need more details.",
			expected: `{"score": 0.85, "issues_resolved": 2}`,
		},
		{
			name:     "trailing garbage after object",
			input:    `{"score": 0.5} and that concludes the review`,
			expected: `{"score": 0.5}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSON(tt.input)
			if result != tt.expected {
				t.Errorf("ExtractJSON() = %q, want %q", result, tt.expected)
			}
		})
	}
}
