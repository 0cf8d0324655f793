// Package export renders board snapshots as downloadable PDF and DOCX files.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	BoardID string
	Format  Format
}

// BoardInfo holds the board snapshot handed to the renderer
type BoardInfo struct {
	ID        string
	Name      string
	Revision  int64
	UpdatedAt time.Time
	Columns   []ColumnInfo
}

// ColumnInfo holds one column and its cards
type ColumnInfo struct {
	Title string
	Cards []CardInfo
}

// CardInfo holds a single card
type CardInfo struct {
	Title       string
	Description string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates the board could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
