package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// parsePDF validates the document with pdfcpu, then extracts per-page plain
// text. A page whose content cannot be decoded yields an empty text record
// rather than failing the document.
func parsePDF(documentID uuid.UUID, data []byte) (*Document, error) {
	pageCount, err := pdfapi.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		if isEncryptionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if isEncryptionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	pages := make([]Page, 0, pageCount)
	for i := 1; i <= reader.NumPage(); i++ {
		text := extractPageText(reader, i)
		pages = append(pages, Page{
			Number:   i,
			Text:     text,
			Sections: detectSections(text),
		})
	}

	return &Document{DocumentID: documentID, Pages: pages}, nil
}

// extractPageText decodes one page's text content. The PDF content stream is
// untrusted input and the decoder can panic on malformed operators, so the
// extraction is fenced with a recover.
func extractPageText(reader *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	content, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}

	return content
}

func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}
