package ingestion

import (
	"regexp"
	"strings"
	"unicode"
)

// TextChunk is a packed span of paragraphs sharing one heading.
type TextChunk struct {
	Text    string
	Heading string
}

var numberedHeading = regexp.MustCompile(`^(section\s+)?(\d+(\.\d+)*[.)]?|[ivxlc]+[.)])\s+\S`)

// ExtractTitle returns the first markdown heading or fallback.
func ExtractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return fallback
}

// ChunkMarkdown packs markdown paragraphs into chunks of roughly target bytes.
func ChunkMarkdown(content string, target, overlap int) []TextChunk {
	return chunkParagraphs(markdownParagraphs(content), target, overlap)
}

// ChunkPlainText is ChunkMarkdown for extracted text, where headings are
// recognised by shape rather than markup.
func ChunkPlainText(content string, target, overlap int) []TextChunk {
	return chunkParagraphs(plainTextParagraphs(normalizePlainText(content)), target, overlap)
}

func markdownParagraphs(content string) []Paragraph {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	paragraphs := make([]Paragraph, 0)
	heading := ""

	for _, block := range strings.Split(clean, "\n\n") {
		var body []string
		for _, line := range strings.Split(block, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				if len(body) > 0 {
					paragraphs = append(paragraphs, Paragraph{Text: strings.Join(body, "\n"), Heading: heading})
					body = nil
				}
				heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
				continue
			}
			if trimmed != "" {
				body = append(body, trimmed)
			}
		}
		if len(body) > 0 {
			paragraphs = append(paragraphs, Paragraph{Text: strings.Join(body, "\n"), Heading: heading})
		}
	}

	return paragraphs
}

func plainTextParagraphs(content string) []Paragraph {
	paragraphs := make([]Paragraph, 0)
	heading := ""
	var body []string

	flush := func() {
		if len(body) > 0 {
			paragraphs = append(paragraphs, Paragraph{Text: strings.Join(body, "\n"), Heading: heading})
			body = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case isPlainHeading(trimmed):
			flush()
			heading = trimmed
		default:
			body = append(body, trimmed)
		}
	}
	flush()

	return paragraphs
}

// isPlainHeading accepts short upper-case lines and numbered clause titles
// such as "4.2 Exclusions".
func isPlainHeading(line string) bool {
	if len(line) > 80 || strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}

	letters, upper := 0, 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters >= 3 && upper == letters {
		return true
	}

	if numberedHeading.MatchString(strings.ToLower(line)) {
		words := strings.Fields(line)
		return len(words) <= 8
	}
	return false
}

// chunkParagraphs packs paragraphs up to target bytes. A heading change
// always starts a new chunk. When the last paragraph of a closed chunk fits
// within overlap it is carried into the next chunk under the same heading.
func chunkParagraphs(paragraphs []Paragraph, target, overlap int) []TextChunk {
	if target <= 0 {
		target = 1000
	}
	if overlap < 0 || overlap >= target {
		overlap = 0
	}

	chunks := make([]TextChunk, 0)
	current := make([]string, 0)
	currentLen := 0
	heading := ""

	emit := func() {
		if len(current) > 0 {
			chunks = append(chunks, TextChunk{Text: strings.Join(current, "\n\n"), Heading: heading})
		}
	}

	for _, paragraph := range paragraphs {
		p := strings.TrimSpace(paragraph.Text)
		if p == "" {
			continue
		}

		if paragraph.Heading != heading {
			emit()
			current = current[:0]
			currentLen = 0
			heading = paragraph.Heading
		}

		for _, piece := range splitLong(p, target) {
			if currentLen+len(piece) > target && len(current) > 0 {
				emit()
				last := current[len(current)-1]
				if overlap > 0 && len(last) <= overlap && len(last)+len(piece) <= target {
					current = []string{last}
					currentLen = len(last)
				} else {
					current = current[:0]
					currentLen = 0
				}
			}
			current = append(current, piece)
			currentLen += len(piece)
		}
	}
	emit()

	return chunks
}

// splitLong breaks a paragraph longer than target on whitespace.
func splitLong(paragraph string, target int) []string {
	if len(paragraph) <= target {
		return []string{paragraph}
	}

	pieces := make([]string, 0, len(paragraph)/target+1)
	var sb strings.Builder
	for _, word := range strings.Fields(paragraph) {
		if sb.Len() > 0 && sb.Len()+1+len(word) > target {
			pieces = append(pieces, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	if sb.Len() > 0 {
		pieces = append(pieces, sb.String())
	}
	return pieces
}
