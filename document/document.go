/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package document parses multi-section markdown documents into the
// section model the refinement engine works on, and renders them back.
// Section identifiers are assigned at parse time and remain stable for
// the life of a document.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/PivotLLM/Refinery/global"
)

// Parse splits markdown text into sections on level-2 headings. A leading
// level-1 heading becomes the document title; any body text before the
// first level-2 heading is kept as an untitled preamble section.
func Parse(name, text string) (*global.Document, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("document name cannot be empty")
	}

	doc := &global.Document{
		Name:      name,
		UpdatedAt: time.Now().UTC(),
	}

	lines := strings.Split(text, "\n")
	var current *global.Section
	var preamble []string
	inFence := false

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(current.Content)
			doc.Sections = append(doc.Sections, *current)
			current = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		// Headings inside code fences are content, not structure
		if !inFence && strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###") {
			flush()
			title := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			current = &global.Section{
				Title:    title,
				Position: len(doc.Sections),
			}
			continue
		}

		if !inFence && strings.HasPrefix(line, "# ") && doc.Title == "" && current == nil && len(preamble) == 0 {
			doc.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			continue
		}

		if current != nil {
			current.Content += line + "\n"
		} else if trimmed != "" || len(preamble) > 0 {
			preamble = append(preamble, line)
		}
	}
	flush()

	if body := strings.TrimSpace(strings.Join(preamble, "\n")); body != "" {
		preSection := global.Section{
			Title:    "",
			Content:  body,
			Position: 0,
		}
		doc.Sections = append([]global.Section{preSection}, doc.Sections...)
		for i := range doc.Sections {
			doc.Sections[i].Position = i
		}
	}

	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("document %s has no sections", name)
	}

	assignIDs(doc)
	return doc, nil
}

// assignIDs gives every section a stable identifier derived from its
// position and title slug. Positions are already final when this runs.
func assignIDs(doc *global.Document) {
	for i := range doc.Sections {
		s := &doc.Sections[i]
		slug := slugify(s.Title)
		if slug == "" {
			slug = "preamble"
		}
		s.ID = fmt.Sprintf("s%02d-%s", s.Position+1, slug)
	}
}

// slugify lowercases and strips a title down to [a-z0-9-]
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// Render reassembles a document into markdown text
func Render(doc *global.Document) string {
	var b strings.Builder
	if doc.Title != "" {
		b.WriteString("# " + doc.Title + "\n\n")
	}
	for i, s := range doc.Sections {
		if s.Title != "" {
			b.WriteString("## " + s.Title + "\n\n")
		}
		b.WriteString(strings.TrimSpace(s.Content))
		if i < len(doc.Sections)-1 {
			b.WriteString("\n\n")
		} else {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// SectionByID returns the section with the given identifier, or nil
func SectionByID(doc *global.Document, id string) *global.Section {
	for i := range doc.Sections {
		if doc.Sections[i].ID == id {
			return &doc.Sections[i]
		}
	}
	return nil
}

// WithSectionContent returns a copy of the document with one section's
// content replaced. The input document is never modified; the engine
// patches between iterations by swapping in the returned copy.
func WithSectionContent(doc *global.Document, sectionID, content string) *global.Document {
	clone := *doc
	clone.Sections = make([]global.Section, len(doc.Sections))
	copy(clone.Sections, doc.Sections)
	for i := range clone.Sections {
		if clone.Sections[i].ID == sectionID {
			clone.Sections[i].Content = content
			break
		}
	}
	clone.UpdatedAt = time.Now().UTC()
	return &clone
}

// Anchors builds coherence anchors for a section: the tail of the
// preceding section and the head of the following one.
func Anchors(doc *global.Document, sectionID string, maxLen int) *global.ContextAnchors {
	if maxLen <= 0 {
		maxLen = global.DefaultContextAnchorLen
	}

	idx := -1
	for i := range doc.Sections {
		if doc.Sections[i].ID == sectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	anchors := &global.ContextAnchors{}
	if idx > 0 {
		prev := doc.Sections[idx-1].Content
		if len(prev) > maxLen {
			prev = prev[len(prev)-maxLen:]
		}
		anchors.Preceding = prev
	}
	if idx < len(doc.Sections)-1 {
		next := doc.Sections[idx+1].Content
		if len(next) > maxLen {
			next = next[:maxLen]
		}
		anchors.Following = next
	}
	if anchors.Preceding == "" && anchors.Following == "" {
		return nil
	}
	return anchors
}

// Validate checks structural invariants before a refinement run
func Validate(doc *global.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.Name == "" {
		return fmt.Errorf("document name cannot be empty")
	}
	if len(doc.Sections) == 0 {
		return fmt.Errorf("document %s has no sections", doc.Name)
	}
	seen := make(map[string]bool, len(doc.Sections))
	for _, s := range doc.Sections {
		if s.ID == "" {
			return fmt.Errorf("document %s has a section with no identifier", doc.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("document %s has duplicate section id: %s", doc.Name, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
