package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// ErrDocumentFetch marks a document that could not be retrieved.
	ErrDocumentFetch = errors.New("document fetch failed")
	// ErrDocumentParse marks a document whose contents could not be read.
	ErrDocumentParse = errors.New("document parse failed")
)

const defaultMaxDocumentBytes = 50 << 20

// DocumentPayload is a fetched document before parsing.
type DocumentPayload struct {
	Ref         string
	Path        string
	ContentType string
	Data        []byte
}

// Fetcher reads documents from http(s) URLs or the local filesystem.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxDocumentBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, ref string) (DocumentPayload, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return DocumentPayload{}, fmt.Errorf("%w: empty document reference", ErrDocumentFetch)
	}

	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.fetchURL(ctx, ref, u)
	}
	return f.readFile(ref)
}

func (f *Fetcher) fetchURL(ctx context.Context, ref string, u *url.URL) (DocumentPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: create request: %w", ErrDocumentFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: download document: %w", ErrDocumentFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return DocumentPayload{}, fmt.Errorf("%w: download document returned status %s", ErrDocumentFetch, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: read document body: %w", ErrDocumentFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return DocumentPayload{}, fmt.Errorf("%w: document exceeds %d bytes", ErrDocumentFetch, f.maxBytes)
	}

	return DocumentPayload{
		Ref:         ref,
		Path:        u.Path,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (f *Fetcher) readFile(path string) (DocumentPayload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: %w", ErrDocumentFetch, err)
	}
	if info.IsDir() {
		return DocumentPayload{}, fmt.Errorf("%w: %s is a directory", ErrDocumentFetch, path)
	}
	if info.Size() > f.maxBytes {
		return DocumentPayload{}, fmt.Errorf("%w: document exceeds %d bytes", ErrDocumentFetch, f.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: read file: %w", ErrDocumentFetch, err)
	}

	return DocumentPayload{Ref: path, Path: path, Data: data}, nil
}
