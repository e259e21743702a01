// Package index stores embedded chunks for the lifetime of a single request
// and answers nearest-neighbour queries over them.
package index

import (
	"context"
	"errors"
	"math"

	"github.com/fabfab/policynth/document"
)

// ErrUnavailable wraps every storage failure reported by an index.
var ErrUnavailable = errors.New("vector index unavailable")

// Hit is a chunk paired with its cosine similarity to the query vector.
type Hit struct {
	Chunk      document.Chunk
	Similarity float64
}

// Index holds the chunks of exactly one document. Search results are ordered
// by similarity descending, then by chunk insertion order.
type Index interface {
	Clear(ctx context.Context) error
	Upsert(ctx context.Context, chunks []document.Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Provider hands out an isolated index per request namespace.
type Provider interface {
	Open(ctx context.Context, namespace string) (Index, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
