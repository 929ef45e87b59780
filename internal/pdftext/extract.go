// Package pdftext turns uploaded PDF bytes into plain text.
package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"ludolens/internal/util"

	"github.com/ledongthuc/pdf"
)

const pageSeparator = "\n\n"

type Result struct {
	Text         string
	Pages        int
	SkippedPages []int
}

// Extract reads every page in order and joins the page texts. Pages whose text
// cannot be decoded are skipped and reported; a document with no text at all
// fails with util.ErrNoExtractableText.
func Extract(data []byte) (res Result, err error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: empty file", util.ErrInvalidPDF)
	}
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("%w: %v", util.ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", util.ErrInvalidPDF, err)
	}

	pages := reader.NumPage()
	parts := make([]string, 0, pages)
	var skipped []int
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			skipped = append(skipped, i)
			continue
		}
		// A nil map makes the reader resolve this page's own font encoders.
		text, err := page.GetPlainText(nil)
		if err != nil {
			skipped = append(skipped, i)
			continue
		}
		text = util.SanitizeText(text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	joined := strings.TrimSpace(strings.Join(parts, pageSeparator))
	if joined == "" {
		return Result{Pages: pages, SkippedPages: skipped}, util.ErrNoExtractableText
	}
	return Result{Text: joined, Pages: pages, SkippedPages: skipped}, nil
}
