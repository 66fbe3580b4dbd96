/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package reference provides read-only access to embedded reference documentation.
package reference

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/PivotLLM/Refinery/logging"
)

// embeddedPrefix is the directory prefix for embedded reference files
const embeddedPrefix = "docs/ai"

// Service provides read-only access to embedded reference files.
type Service struct {
	fs     embed.FS
	prefix string
	logger *logging.Logger
}

// Item represents a reference file item.
type Item struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Content   string `json:"content,omitempty"`
	// Byte range fields (only set when offset/max_bytes used)
	Offset     int64 `json:"offset,omitempty"`
	TotalBytes int64 `json:"total_bytes,omitempty"`
}

// Option is a functional option for configuring Service
type Option func(*Service)

// WithEmbeddedFS sets the embedded filesystem for reference documentation
func WithEmbeddedFS(efs embed.FS) Option {
	return func(s *Service) {
		s.fs = efs
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new reference service with functional options.
func NewService(opts ...Option) *Service {
	s := &Service{
		prefix: embeddedPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validatePath validates and cleans a path, preventing path traversal.
// Returns the cleaned path within the reference prefix.
func (s *Service) validatePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	if strings.HasPrefix(cleanPath, "..") || strings.Contains(cleanPath, "/../") {
		return "", fmt.Errorf("path traversal attempt detected: %s", path)
	}

	// Normalize to forward slashes for embed.FS
	return filepath.ToSlash(filepath.Join(s.prefix, cleanPath)), nil
}

// List returns all reference files, optionally filtered by prefix.
func (s *Service) List(prefix string) ([]Item, error) {
	var items []Item

	err := fs.WalkDir(s.fs, s.prefix, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.prefix || d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(s.prefix, path)
		if err != nil {
			return nil // Skip if we can't get relative path
		}
		relPath = filepath.ToSlash(relPath)

		if prefix != "" && !strings.HasPrefix(relPath, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // Skip if we can't get info
		}

		items = append(items, Item{
			Path:      relPath,
			SizeBytes: info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list embedded reference files: %w", err)
	}

	s.logger.Debugf("Listed %d reference files", len(items))
	return items, nil
}

// Get retrieves a reference file by path with optional byte range.
// If offset is 0 and maxBytes is 0, returns the entire file.
// If maxBytes > 0, returns at most maxBytes starting from offset.
func (s *Service) Get(path string, offset, maxBytes int64) (*Item, error) {
	fullPath, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}

	content, err := s.fs.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reference file not found: %s", path)
	}
	totalBytes := int64(len(content))

	var resultContent string
	var resultOffset int64

	if maxBytes > 0 {
		if offset < 0 {
			offset = 0
		}
		if offset >= totalBytes {
			// Offset beyond file size - return empty content
			resultContent = ""
			resultOffset = offset
		} else {
			end := offset + maxBytes
			if end > totalBytes {
				end = totalBytes
			}
			resultContent = string(content[offset:end])
			resultOffset = offset
		}
	} else {
		resultContent = string(content)
	}

	item := &Item{
		Path:       path,
		SizeBytes:  int64(len(resultContent)),
		Content:    resultContent,
		Offset:     resultOffset,
		TotalBytes: totalBytes,
	}

	s.logger.Debugf("Retrieved reference file: %s (offset=%d, bytes=%d, total=%d)", path, resultOffset, len(resultContent), totalBytes)
	return item, nil
}
