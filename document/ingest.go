/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tenebris-tech/x2md/convert"
)

// LoadFile reads a source file as markdown text. Markdown and plain-text
// files are read directly; office formats (docx, pptx, xlsx, ...) are
// converted with x2md first, which writes a sibling .md file.
func LoadFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	}

	converter := convert.New(
		convert.WithRecursion(false),
		convert.WithSkipExisting(false),
	)
	result, err := converter.Convert(path)
	if err != nil {
		return "", fmt.Errorf("conversion failed for %s: %w", path, err)
	}
	if result.Converted == 0 {
		return "", fmt.Errorf("unsupported file type: %s", path)
	}

	mdPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return "", fmt.Errorf("failed to read converted file %s: %w", mdPath, err)
	}
	return string(data), nil
}
