// Package engine runs one question batch against one document: ingest, embed,
// index, answer, then tear the index down.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/policynth/chat"
	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/diagnostics"
	"github.com/fabfab/policynth/document"
	"github.com/fabfab/policynth/index"
	"github.com/fabfab/policynth/intent"
	"github.com/fabfab/policynth/retrieval"
)

// ErrEmptyDocument is returned when a document yields no chunks.
var ErrEmptyDocument = errors.New("document contains no text")

const previewRunes = 60

type Chunker interface {
	Chunk(ctx context.Context, ref string) ([]document.Chunk, error)
}

type Embedder interface {
	EmbedChunks(ctx context.Context, texts []string, contexts []map[string]any) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type Classifier interface {
	Classify(ctx context.Context, question string) intent.Descriptor
}

type Synthesizer interface {
	Generate(ctx context.Context, question string, chunks []document.ScoredChunk) string
}

// ProgressFunc is called after each answered question.
type ProgressFunc func(done, total int)

type Deps struct {
	Chunker     Chunker
	Embedder    Embedder
	Index       index.Provider
	Classifier  Classifier
	Synthesizer Synthesizer
	Recorder    diagnostics.Recorder
	Retrieval   config.RetrievalTuning
	Logger      *log.Logger
}

type Request struct {
	DocumentRef string
	Questions   []string
	Progress    ProgressFunc
}

type Response struct {
	RequestID string
	Answers   []string
}

// Engine is safe for concurrent use; every request gets its own index.
type Engine struct {
	deps   Deps
	logger *log.Logger
}

func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Chunker == nil:
		return nil, fmt.Errorf("engine: chunker not configured")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("engine: embedder not configured")
	case deps.Index == nil:
		return nil, fmt.Errorf("engine: index provider not configured")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("engine: classifier not configured")
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("engine: synthesizer not configured")
	}
	if deps.Retrieval.TopK <= 0 {
		deps.Retrieval = config.DefaultTuning().Retrieval
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{deps: deps, logger: logger}, nil
}

// Process answers every question in req against req.DocumentRef. On success
// len(Answers) == len(Questions) and answers keep question order; a question
// that fails individually is answered with chat.ErrorAnswer. Errors that stop
// the whole batch are returned as "process query: <stage>: <cause>".
func (e *Engine) Process(ctx context.Context, req Request) (resp Response, err error) {
	requestID := uuid.NewString()
	r := &run{}
	report := diagnostics.Report{
		RequestID:   requestID,
		DocumentRef: req.DocumentRef,
		StartedAt:   time.Now().UTC(),
	}

	var idx index.Index
	defer func() {
		e.teardown(ctx, r, idx, &report, err)
	}()

	fail := func(cause error) error {
		return fmt.Errorf("process query: %s: %w", r.current(), cause)
	}

	if err := r.enter(StageIngesting); err != nil {
		return Response{}, err
	}
	chunks, err := e.deps.Chunker.Chunk(ctx, req.DocumentRef)
	if err != nil {
		return Response{}, fail(err)
	}
	if len(chunks) == 0 {
		return Response{}, fail(ErrEmptyDocument)
	}
	report.Chunks = chunkRecords(chunks)
	e.logger.Printf("request %s: %d chunks from %s", requestID, len(chunks), req.DocumentRef)

	if err := r.enter(StageEmbedding); err != nil {
		return Response{}, err
	}
	if err := e.embed(ctx, chunks); err != nil {
		return Response{}, fail(err)
	}

	if err := r.enter(StageIndexing); err != nil {
		return Response{}, err
	}
	idx, err = e.deps.Index.Open(ctx, requestID)
	if err != nil {
		return Response{}, fail(err)
	}
	if err := idx.Clear(ctx); err != nil {
		return Response{}, fail(err)
	}
	if err := idx.Upsert(ctx, chunks); err != nil {
		return Response{}, fail(err)
	}

	if err := r.enter(StageAnswering); err != nil {
		return Response{}, err
	}
	retriever := retrieval.New(idx, e.deps.Retrieval)
	answers := make([]string, len(req.Questions))
	report.Questions = make([]diagnostics.QuestionRecord, len(req.Questions))
	for i, question := range req.Questions {
		answers[i], report.Questions[i] = e.answer(ctx, retriever, i, question)
		if req.Progress != nil {
			req.Progress(i+1, len(req.Questions))
		}
	}

	return Response{RequestID: requestID, Answers: answers}, nil
}

func (e *Engine) embed(ctx context.Context, chunks []document.Chunk) error {
	texts := make([]string, len(chunks))
	contexts := make([]map[string]any, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
		contexts[i] = chunks[i].Metadata
	}

	vectors, err := e.deps.Embedder.EmbedChunks(ctx, texts, contexts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

func (e *Engine) answer(ctx context.Context, retriever *retrieval.Retriever, position int, question string) (string, diagnostics.QuestionRecord) {
	rec := diagnostics.QuestionRecord{Position: position, Question: question}

	vector, err := e.deps.Embedder.EmbedOne(ctx, question)
	if err != nil {
		answer := chat.ErrorAnswer(fmt.Errorf("embed question: %w", err))
		rec.Err = answer
		e.logger.Printf("question %d: %v", position+1, err)
		return answer, rec
	}

	d := e.deps.Classifier.Classify(ctx, question)
	rec.IntentType = string(d.Type)
	rec.IntentSource = string(d.Source)
	rec.Confidence = d.Confidence
	rec.LookingFor = d.LookingFor
	e.logger.Printf("question %d: intent=%s looking_for=%q", position+1, d.Type, d.LookingFor)

	hits, err := retriever.Search(ctx, vector, e.deps.Retrieval.TopK, question, d)
	if err != nil {
		answer := chat.ErrorAnswer(fmt.Errorf("retrieve context: %w", err))
		rec.Err = answer
		e.logger.Printf("question %d: %v", position+1, err)
		return answer, rec
	}

	rec.Retrieved = make([]diagnostics.RetrievedRecord, 0, len(hits))
	for rank, hit := range hits {
		e.logger.Printf("   %d. %.3f | %s | %s", rank+1, hit.Score, hit.Chunk.Type(), hit.Chunk.Preview(previewRunes))
		rec.Retrieved = append(rec.Retrieved, diagnostics.RetrievedRecord{
			Rank:       rank + 1,
			ChunkIndex: hit.Chunk.Index,
			Type:       hit.Chunk.Type(),
			Score:      hit.Score,
			Similarity: hit.Similarity,
		})
	}

	answer := e.deps.Synthesizer.Generate(ctx, question, hits)
	if chat.IsErrorAnswer(answer) {
		rec.Err = answer
	}
	return answer, rec
}

// teardown always empties and closes the index, even when ctx was cancelled,
// then hands the report to the recorder.
func (e *Engine) teardown(ctx context.Context, r *run, idx index.Index, report *diagnostics.Report, procErr error) {
	report.Stage = r.current().String()
	if procErr != nil {
		report.Err = procErr.Error()
	}

	if err := r.enter(StageTeardown); err != nil {
		e.logger.Printf("request %s: %v", report.RequestID, err)
	}

	cleanup := context.WithoutCancel(ctx)
	if idx != nil {
		if err := idx.Clear(cleanup); err != nil {
			e.logger.Printf("request %s: clear index: %v", report.RequestID, err)
		}
		if err := idx.Close(); err != nil {
			e.logger.Printf("request %s: close index: %v", report.RequestID, err)
		}
	}

	if err := r.enter(StageDone); err != nil {
		e.logger.Printf("request %s: %v", report.RequestID, err)
	}
	if procErr == nil {
		report.Stage = r.current().String()
	}
	report.FinishedAt = time.Now().UTC()

	if e.deps.Recorder == nil {
		return
	}
	if err := e.deps.Recorder.Record(cleanup, *report); err != nil {
		e.logger.Printf("request %s: record diagnostics: %v", report.RequestID, err)
	}
}

func chunkRecords(chunks []document.Chunk) []diagnostics.ChunkRecord {
	records := make([]diagnostics.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = diagnostics.ChunkRecord{
			Index:   c.Index,
			Type:    c.Type(),
			Heading: c.Heading(),
			Length:  len(c.Text),
			Preview: c.Preview(previewRunes),
		}
	}
	return records
}
