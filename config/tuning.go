package config

import (
	"fmt"
	"time"
)

// IntentTuning holds the confidence attached to each rule cascade branch.
type IntentTuning struct {
	LexiconConfidence       float64       `yaml:"lexicon_confidence"`
	ShapeConfidence         float64       `yaml:"shape_confidence"`
	SpecificValueConfidence float64       `yaml:"specific_value_confidence"`
	CategoryConfidence      float64       `yaml:"category_confidence"`
	DefinitionConfidence    float64       `yaml:"definition_confidence"`
	Timeout                 time.Duration `yaml:"timeout"`
}

// RetrievalTuning holds the reranking magnitudes. Boosts are additive and
// must stay non-negative so that a match never lowers a chunk's score.
type RetrievalTuning struct {
	TopK                int     `yaml:"top_k"`
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	SectionBoost        float64 `yaml:"section_boost"`
	SectionDecay        float64 `yaml:"section_decay"`
	TermBoost           float64 `yaml:"term_boost"`
	TermBoostCap        float64 `yaml:"term_boost_cap"`
}

type ChunkingTuning struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type Tuning struct {
	Intent    IntentTuning    `yaml:"intent"`
	Retrieval RetrievalTuning `yaml:"retrieval"`
	Chunking  ChunkingTuning  `yaml:"chunking"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Intent: IntentTuning{
			LexiconConfidence:       0.95,
			ShapeConfidence:         0.85,
			SpecificValueConfidence: 0.75,
			CategoryConfidence:      0.70,
			DefinitionConfidence:    0.60,
			Timeout:                 10 * time.Second,
		},
		Retrieval: RetrievalTuning{
			TopK:                5,
			CandidateMultiplier: 4,
			SectionBoost:        0.15,
			SectionDecay:        0.25,
			TermBoost:           0.03,
			TermBoostCap:        0.12,
		},
		Chunking: ChunkingTuning{
			Size:    1000,
			Overlap: 200,
		},
	}
}

func (t Tuning) Validate() error {
	r := t.Retrieval
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive")
	}
	if r.CandidateMultiplier < 1 {
		return fmt.Errorf("retrieval candidate_multiplier must be at least 1")
	}
	if r.SectionBoost < 0 || r.TermBoost < 0 || r.TermBoostCap < 0 || r.SectionDecay < 0 {
		return fmt.Errorf("retrieval boosts must be non-negative")
	}
	if t.Chunking.Size <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if t.Chunking.Overlap < 0 || t.Chunking.Overlap >= t.Chunking.Size {
		return fmt.Errorf("chunk overlap must be in [0, size)")
	}
	return nil
}
