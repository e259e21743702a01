package ingestion

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/document"
)

func newTestService() *Service {
	cfg := config.Config{Tuning: config.DefaultTuning()}
	return NewService(cfg, log.New(io.Discard, "", 0))
}

func TestChunkMarkdownSplitsLongSections(t *testing.T) {
	text := "# Title\n\n" +
		"## Section One\n\n" +
		"Paragraph one." +
		"\n\n" +
		"Paragraph two is quite a bit longer than the first paragraph and should trigger a split." +
		"\n\n" +
		"Paragraph three." +
		"\n\n" +
		"Paragraph four."

	chunks := ChunkMarkdown(text, 50, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Text, "Paragraph one.") {
		t.Fatalf("unexpected first chunk %q", chunks[0].Text)
	}
	for _, c := range chunks {
		if c.Heading != "Section One" {
			t.Fatalf("expected heading 'Section One', got %q", c.Heading)
		}
	}
}

func TestChunkMarkdownHandlesEmpty(t *testing.T) {
	if chunks := ChunkMarkdown("\n\n", 100, 20); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty content, got %d", len(chunks))
	}
}

func TestChunkParagraphsCarriesShortOverlap(t *testing.T) {
	a := strings.Repeat("a", 20)
	c := strings.Repeat("c", 20)
	chunks := chunkParagraphs([]Paragraph{{Text: a}, {Text: "short"}, {Text: c}}, 30, 10)

	require.Len(t, chunks, 2)
	assert.Equal(t, a+"\n\nshort", chunks[0].Text)
	assert.Equal(t, "short\n\n"+c, chunks[1].Text)
}

func TestChunkParagraphsBreaksOnHeadingChange(t *testing.T) {
	chunks := chunkParagraphs([]Paragraph{
		{Text: "Hospital costs are covered.", Heading: "Coverage"},
		{Text: "Cosmetic surgery is excluded.", Heading: "Exclusions"},
	}, 1000, 200)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Coverage", chunks[0].Heading)
	assert.Equal(t, "Exclusions", chunks[1].Heading)
}

func TestSplitLong(t *testing.T) {
	assert.Equal(t, []string{"one two", "three", "four five"}, splitLong("one two three four five", 9))
	assert.Equal(t, []string{"short"}, splitLong("short", 9))
}

func TestChunkPlainTextDetectsHeadings(t *testing.T) {
	text := "POLICY SCHEDULE\nThe policy covers hospitalisation.\n\n4.2 Exclusions\nCosmetic surgery is excluded."

	chunks := ChunkPlainText(text, 1000, 200)
	require.Len(t, chunks, 2)
	assert.Equal(t, "POLICY SCHEDULE", chunks[0].Heading)
	assert.Equal(t, "4.2 Exclusions", chunks[1].Heading)
	assert.Equal(t, "Cosmetic surgery is excluded.", chunks[1].Text)
}

func TestIsPlainHeading(t *testing.T) {
	assert.True(t, isPlainHeading("SECTION C EXCLUSIONS"))
	assert.True(t, isPlainHeading("4.2 Waiting Period"))
	assert.True(t, isPlainHeading("iv) Room Rent"))
	assert.False(t, isPlainHeading("The insurer will pay."))
	assert.False(t, isPlainHeading("civil court proceedings apply here"))
}

func TestExtractTitle(t *testing.T) {
	content := "Some intro\n# Heading One\nMore text"
	if title := ExtractTitle(content, "fallback"); title != "Heading One" {
		t.Fatalf("expected title 'Heading One', got %q", title)
	}
	if title := ExtractTitle("no headings", "fallback"); title != "fallback" {
		t.Fatalf("expected fallback title, got %q", title)
	}
}

func TestClassifySection(t *testing.T) {
	cases := []struct {
		heading, text, want string
	}{
		{"4.2 Exclusions", "", document.SectionExclusions},
		{"What is not covered", "", document.SectionExclusions},
		{"Definitions", "", document.SectionDefinitions},
		{"Sum Insured and Limits", "", document.SectionLimits},
		{"", "Cosmetic surgery is excluded and not covered.", document.SectionExclusions},
		{"Schedule", "A grace period of thirty days is allowed subject to payment.", document.SectionConditions},
		{"", "Premiums are due annually.", document.SectionGeneral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifySection(tc.heading, tc.text), "heading=%q text=%q", tc.heading, tc.text)
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatPDF, DetectFormat("/docs/policy.PDF", ""))
	assert.Equal(t, FormatMarkdown, DetectFormat("policy.md", "application/octet-stream"))
	assert.Equal(t, FormatPDF, DetectFormat("/download", "application/pdf; charset=binary"))
	assert.Equal(t, FormatText, DetectFormat("/download", "text/plain; charset=utf-8"))
	assert.Equal(t, FormatUnknown, DetectFormat("/download", ""))
}

func TestServiceChunksRemoteMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# Policy\n\n## Coverage\n\nWe will pay hospital expenses.\n\n## Exclusions\n\nCosmetic surgery is not covered.")
	}))
	defer srv.Close()

	ref := srv.URL + "/policy.md"
	chunks, err := newTestService().Chunk(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, document.SectionCoverage, chunks[0].Type())
	assert.Equal(t, document.SectionExclusions, chunks[1].Type())
	assert.Equal(t, "Exclusions", chunks[1].Heading())
	assert.Equal(t, ref, chunks[1].Metadata[document.MetaSource])
}

func TestServiceChunksLocalCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.csv")
	require.NoError(t, os.WriteFile(path, []byte("plan,room rent limit\nGold,5000\n"), 0o600))

	chunks, err := newTestService().Chunk(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "room rent limit: 5000")
	assert.Equal(t, document.SectionLimits, chunks[0].Type())
}

func TestServiceEmptyDocumentYieldsNoChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o600))

	chunks, err := newTestService().Chunk(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestServiceFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	svc := newTestService()
	for _, ref := range []string{"", filepath.Join(t.TempDir(), "missing.pdf"), srv.URL + "/policy.pdf"} {
		_, err := svc.Chunk(context.Background(), ref)
		if !errors.Is(err, ErrDocumentFetch) {
			t.Fatalf("ref %q: expected ErrDocumentFetch, got %v", ref, err)
		}
	}
}

func TestFetcherEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second, 10).Fetch(context.Background(), srv.URL+"/big.txt")
	require.ErrorIs(t, err, ErrDocumentFetch)
}

func TestServiceParseFailures(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(binary, []byte{0xff, 0xfe, 0x00, 0x01}, 0o600))
	badPDF := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(badPDF, []byte("not a pdf"), 0o600))

	svc := newTestService()
	for _, ref := range []string{binary, badPDF} {
		_, err := svc.Chunk(context.Background(), ref)
		if !errors.Is(err, ErrDocumentParse) {
			t.Fatalf("ref %q: expected ErrDocumentParse, got %v", ref, err)
		}
	}
}
