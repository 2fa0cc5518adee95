// Package export renders pages to HTML and produces PDF downloads.
package export

import (
	"errors"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	PageID          string
	Format          Format
	IncludeComments bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates page content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
