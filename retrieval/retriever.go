// Package retrieval reranks vector search results using the question's intent.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/document"
	"github.com/fabfab/policynth/index"
	"github.com/fabfab/policynth/intent"
)

var ErrInvalidTopK = errors.New("top_k must be positive")

// Searcher is the subset of index.Index the retriever reads from.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error)
}

type Retriever struct {
	index  Searcher
	tuning config.RetrievalTuning
}

func New(idx Searcher, tuning config.RetrievalTuning) *Retriever {
	if tuning.CandidateMultiplier < 1 {
		tuning.CandidateMultiplier = 1
	}
	return &Retriever{index: idx, tuning: tuning}
}

// Search returns at most topK chunks ordered by final score, then base
// similarity, then chunk insertion order. Boosts are additive and
// non-negative, so a matching chunk never scores below its base similarity
// and chunks of the same section keep their relative order.
func (r *Retriever) Search(ctx context.Context, queryEmbedding []float32, topK int, queryText string, d intent.Descriptor) ([]document.ScoredChunk, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if r.index == nil {
		return nil, fmt.Errorf("%w: retriever has no index", index.ErrUnavailable)
	}

	hits, err := r.index.Search(ctx, queryEmbedding, topK*r.tuning.CandidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		return []document.ScoredChunk{}, nil
	}

	sections := sectionWeights(d.RankingSections(), r.tuning)
	terms := rankingTerms(d)

	scored := make([]document.ScoredChunk, len(hits))
	for i, hit := range hits {
		score := hit.Similarity
		score += sections[hit.Chunk.Type()]
		score += r.termBoost(hit.Chunk.Text, terms)
		scored[i] = document.ScoredChunk{
			Chunk:      hit.Chunk,
			Score:      score,
			Similarity: hit.Similarity,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Chunk.Index < b.Chunk.Index
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// sectionWeights assigns each priority section a boost that decays with its
// position in the list. Unknown section tags are matched literally and so
// only ever affect chunks carrying the same tag.
func sectionWeights(sections []string, tuning config.RetrievalTuning) map[string]float64 {
	weights := make(map[string]float64, len(sections))
	for pos, section := range sections {
		section = strings.ToLower(strings.TrimSpace(section))
		if section == "" {
			continue
		}
		if _, seen := weights[section]; seen {
			continue
		}
		w := tuning.SectionBoost * (1 - tuning.SectionDecay*float64(pos))
		if w < 0 {
			w = 0
		}
		weights[section] = w
	}
	return weights
}

func rankingTerms(d intent.Descriptor) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, list := range [][]string{d.KeyTerms, d.ExpectedContent} {
		for _, term := range list {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" {
				continue
			}
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	return terms
}

func (r *Retriever) termBoost(text string, terms []string) float64 {
	if len(terms) == 0 || r.tuning.TermBoost <= 0 {
		return 0
	}
	lower := strings.ToLower(text)
	var boost float64
	for _, term := range terms {
		if strings.Contains(lower, term) {
			boost += r.tuning.TermBoost
		}
	}
	if r.tuning.TermBoostCap > 0 && boost > r.tuning.TermBoostCap {
		boost = r.tuning.TermBoostCap
	}
	return boost
}
