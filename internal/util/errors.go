package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrInvalidPDF        = errors.New("file is not a readable PDF")
)
