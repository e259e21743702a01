package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/document"
)

// Service turns a document reference into section-tagged chunks.
type Service struct {
	fetcher *Fetcher
	parsers map[DocumentFormat]DocumentParser
	size    int
	overlap int
	logger  *log.Logger
}

func NewService(cfg config.Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		fetcher: NewFetcher(cfg.Ingestion.FetchTimeout, cfg.Ingestion.MaxDocumentBytes),
		parsers: defaultParsers(),
		size:    cfg.Tuning.Chunking.Size,
		overlap: cfg.Tuning.Chunking.Overlap,
		logger:  logger,
	}
}

// Chunk fetches ref and returns its chunks in document order. Fetch failures
// wrap ErrDocumentFetch, unreadable contents wrap ErrDocumentParse. A document
// without text yields an empty slice and no error.
func (s *Service) Chunk(ctx context.Context, ref string) ([]document.Chunk, error) {
	payload, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parse(ctx, payload)
	if err != nil {
		return nil, err
	}

	packed := chunkParagraphs(parsed.Paragraphs, s.size, s.overlap)
	chunks := make([]document.Chunk, 0, len(packed))
	for idx, tc := range packed {
		chunks = append(chunks, document.Chunk{
			Index: idx,
			Text:  tc.Text,
			Metadata: map[string]any{
				document.MetaType:    ClassifySection(tc.Heading, tc.Text),
				document.MetaHeading: tc.Heading,
				document.MetaSource:  payload.Ref,
			},
		})
	}

	s.logger.Printf("chunked %s (%q, %d chunks)", payload.Ref, parsed.Title, len(chunks))
	return chunks, nil
}

func (s *Service) parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	format := DetectFormat(payload.Path, payload.ContentType)
	if format == FormatUnknown {
		if !utf8.Valid(payload.Data) || strings.ContainsRune(string(payload.Data), 0) {
			return nil, fmt.Errorf("%w: unsupported document format for %s", ErrDocumentParse, payload.Ref)
		}
		format = FormatText
	}

	parser, ok := s.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %s", ErrDocumentParse, format)
	}

	parsed, err := parser.Parse(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDocumentParse, format, err)
	}
	return parsed, nil
}
