// Package ingestion fetches a policy document, extracts its text and splits it
// into section-tagged chunks.
package ingestion

import (
	"mime"
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown DocumentFormat = ""
	// FormatMarkdown represents Markdown documents.
	FormatMarkdown DocumentFormat = "markdown"
	// FormatPDF represents PDF documents.
	FormatPDF DocumentFormat = "pdf"
	// FormatCSV represents comma separated values documents.
	FormatCSV DocumentFormat = "csv"
	// FormatText represents plain text documents.
	FormatText DocumentFormat = "text"
)

// DetectFormat infers a document format from the path's extension, falling
// back to the Content-Type reported by the server.
func DetectFormat(path, contentType string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".pdf":
		return FormatPDF
	case ".csv":
		return FormatCSV
	case ".txt", ".text":
		return FormatText
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatUnknown
	}
	switch mediaType {
	case "application/pdf":
		return FormatPDF
	case "text/markdown", "text/x-markdown":
		return FormatMarkdown
	case "text/csv":
		return FormatCSV
	case "text/plain":
		return FormatText
	default:
		return FormatUnknown
	}
}
