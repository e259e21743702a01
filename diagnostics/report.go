// Package diagnostics keeps a post-mortem record of each processed request.
// Records hold chunk metadata and retrieval summaries only; they are never
// searched when answering questions.
package diagnostics

import (
	"context"
	"time"
)

// Recorder persists a finished request report.
type Recorder interface {
	Record(ctx context.Context, report Report) error
}

type Report struct {
	RequestID   string           `json:"request_id"`
	DocumentRef string           `json:"document_ref"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Stage       string           `json:"stage"`
	Chunks      []ChunkRecord    `json:"chunks"`
	Questions   []QuestionRecord `json:"questions"`
	Err         string           `json:"error,omitempty"`
}

type ChunkRecord struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Heading string `json:"heading,omitempty"`
	Length  int    `json:"length"`
	Preview string `json:"preview"`
}

type QuestionRecord struct {
	Position     int               `json:"position"`
	Question     string            `json:"question"`
	IntentType   string            `json:"intent_type"`
	IntentSource string            `json:"intent_source"`
	Confidence   float64           `json:"confidence"`
	LookingFor   string            `json:"looking_for,omitempty"`
	Retrieved    []RetrievedRecord `json:"retrieved"`
	Err          string            `json:"error,omitempty"`
}

type RetrievedRecord struct {
	Rank       int     `json:"rank"`
	ChunkIndex int     `json:"chunk_index"`
	Type       string  `json:"type"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// Failed reports whether the request ended with a fatal error.
func (r Report) Failed() bool {
	return r.Err != ""
}

// Multi fans a report out to several recorders and returns the first error.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, report Report) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, report); err != nil && first == nil {
			first = err
		}
	}
	return first
}
