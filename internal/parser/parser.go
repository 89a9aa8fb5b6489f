// Package parser extracts indexed plain text from uploaded documents.
// Page-oriented formats (PDF) produce one record per page; linear formats
// (plain text, markdown) produce a single page. Section headings are
// detected best-effort with their byte offsets within each page.
package parser

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Section is a detected heading within a page. Offset is the byte index of
// the heading line within the page text.
type Section struct {
	Label  string `json:"label"`
	Offset int    `json:"offset"`
}

// Page holds the extracted text of a single page and its detected sections.
type Page struct {
	Number   int       `json:"number"`
	Text     string    `json:"text"`
	Sections []Section `json:"sections,omitempty"`
}

// Document is the parsed representation of a single uploaded file.
type Document struct {
	DocumentID uuid.UUID `json:"document_id"`
	Pages      []Page    `json:"pages"`
}

// TotalPages returns the page count of the parsed document.
func (d *Document) TotalPages() int {
	return len(d.Pages)
}

// Empty reports whether no text was extracted from any page.
// An empty parse is valid; criteria referencing it simply fail validation.
func (d *Document) Empty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// SectionAt returns the label of the nearest section heading at or before
// offset on the given page, or empty when none precedes it.
func (p Page) SectionAt(offset int) string {
	label := ""
	for _, s := range p.Sections {
		if s.Offset > offset {
			break
		}
		label = s.Label
	}
	return label
}

// Parse extracts an indexed text representation from raw file bytes.
// The declared MIME type selects the extraction strategy. Returns
// ErrUnsupported, ErrEncrypted, or ErrCorrupt wrapped in context on failure;
// empty extracted text is a valid, content-less parse.
func Parse(ctx context.Context, documentID uuid.UUID, data []byte, contentType string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case contentType == "application/pdf":
		return parsePDF(documentID, data)
	case isLinearType(contentType):
		return parseLinear(documentID, data), nil
	default:
		return nil, unsupportedError(contentType)
	}
}

// Linear formats carry no native pagination and are treated as a single page.
func isLinearType(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch contentType {
	case "application/json", "application/xml":
		return true
	}
	return false
}

func parseLinear(documentID uuid.UUID, data []byte) *Document {
	text := string(data)
	return &Document{
		DocumentID: documentID,
		Pages: []Page{{
			Number:   1,
			Text:     text,
			Sections: detectSections(text),
		}},
	}
}
