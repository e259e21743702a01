package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

type DocumentParser interface {
	Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error)
}

// ParsedDocument is the extracted text of a document, split into paragraphs
// that remember the nearest heading above them.
type ParsedDocument struct {
	Title      string
	Paragraphs []Paragraph
}

type Paragraph struct {
	Text    string
	Heading string
}

func defaultParsers() map[DocumentFormat]DocumentParser {
	return map[DocumentFormat]DocumentParser{
		FormatMarkdown: markdownParser{},
		FormatPDF:      pdfParser{},
		FormatCSV:      csvParser{},
		FormatText:     textParser{},
	}
}

type markdownParser struct{}

func (markdownParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	if !utf8.Valid(payload.Data) {
		return nil, fmt.Errorf("markdown is not valid utf-8")
	}
	content := string(payload.Data)
	return &ParsedDocument{
		Title:      ExtractTitle(content, baseName(payload.Path)),
		Paragraphs: markdownParagraphs(content),
	}, nil
}

type textParser struct{}

func (textParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	if !utf8.Valid(payload.Data) {
		return nil, fmt.Errorf("text is not valid utf-8")
	}
	content := normalizePlainText(string(payload.Data))
	title := firstNonEmptyLine(content)
	if title == "" {
		title = baseName(payload.Path)
	}
	return &ParsedDocument{
		Title:      title,
		Paragraphs: plainTextParagraphs(content),
	}, nil
}

type pdfParser struct{}

func (pdfParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	reader := bytes.NewReader(payload.Data)
	doc, err := pdf.NewReader(reader, int64(len(payload.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			buf.WriteString(strings.TrimSpace(line.String()))
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}

	if strings.TrimSpace(buf.String()) == "" {
		plain, err := doc.GetPlainText()
		if err != nil {
			return nil, fmt.Errorf("extract pdf text: %w", err)
		}
		if _, err := io.Copy(&buf, plain); err != nil {
			return nil, fmt.Errorf("read pdf text: %w", err)
		}
	}

	content := normalizePlainText(buf.String())
	title := firstNonEmptyLine(content)
	if title == "" {
		title = baseName(payload.Path)
	}

	return &ParsedDocument{
		Title:      title,
		Paragraphs: plainTextParagraphs(content),
	}, nil
}

type csvParser struct{}

func (csvParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	reader := csv.NewReader(bytes.NewReader(payload.Data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	title := baseName(payload.Path)
	if len(records) == 0 {
		return &ParsedDocument{Title: title}, nil
	}

	headers := records[0]
	if headerTitle := firstNonEmpty(headers); headerTitle != "" {
		title = headerTitle
	}

	heading := strings.Join(headers, " / ")
	paragraphs := make([]Paragraph, 0, len(records)-1)
	for idx, row := range records[1:] {
		paragraphs = append(paragraphs, Paragraph{
			Text:    formatCSVRow(headers, row, idx),
			Heading: heading,
		})
	}

	return &ParsedDocument{Title: title, Paragraphs: paragraphs}, nil
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func formatCSVRow(headers, row []string, idx int) string {
	builder := &strings.Builder{}
	builder.WriteString(fmt.Sprintf("Row %d", idx+1))

	limit := min(len(headers), len(row))
	for i := 0; i < limit; i++ {
		header := strings.TrimSpace(headers[i])
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		builder.WriteString("\n")
		builder.WriteString(header)
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(row[i]))
	}

	for i := len(headers); i < len(row); i++ {
		builder.WriteString(fmt.Sprintf("\nExtra %d: %s", i+1, strings.TrimSpace(row[i])))
	}

	return builder.String()
}
