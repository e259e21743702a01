package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/fabfab/policynth/document"
	"github.com/fabfab/policynth/llm"
)

type stubLLM struct {
	answer   string
	err      error
	calls    int
	messages []llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls++
	s.messages = messages
	if s.err != nil {
		return "", s.err
	}
	if len(messages) == 0 {
		return "", errors.New("no messages provided")
	}
	return s.answer, nil
}

var _ llm.Client = (*stubLLM)(nil)

func scored(idx int, section, text string) document.ScoredChunk {
	return document.ScoredChunk{Chunk: document.Chunk{
		Index:    idx,
		Text:     text,
		Metadata: map[string]any{document.MetaType: section},
	}}
}

func TestGenerateReturnsAnswer(t *testing.T) {
	client := &stubLLM{answer: "  A grace period of thirty days is provided.  "}
	svc := NewService(client, log.New(io.Discard, "", 0))

	answer := svc.Generate(context.Background(), "What is the grace period?", []document.ScoredChunk{
		scored(4, "conditions", "Grace period of thirty days."),
		scored(1, "general", "Premiums are payable yearly."),
	})

	if answer != "A grace period of thirty days is provided." {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one call, got %d", client.calls)
	}

	prompt := client.messages[1].Content
	first := strings.Index(prompt, "Grace period of thirty days.")
	second := strings.Index(prompt, "Premiums are payable yearly.")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("context must appear in ranking order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Context 1 [conditions]") {
		t.Fatalf("expected labelled context, got:\n%s", prompt)
	}
	if client.messages[0].Role != llm.RoleSystem {
		t.Fatalf("expected system prompt first")
	}
}

func TestGenerateFailureIsReportedInline(t *testing.T) {
	client := &stubLLM{err: llm.ErrGenerationTimeout}
	svc := NewService(client, log.New(io.Discard, "", 0))

	answer := svc.Generate(context.Background(), "q", nil)
	if !IsErrorAnswer(answer) {
		t.Fatalf("expected error answer, got %q", answer)
	}
	if !strings.Contains(answer, "generation timed out") {
		t.Fatalf("expected cause in answer, got %q", answer)
	}
	if client.calls != 1 {
		t.Fatalf("expected no retry, got %d calls", client.calls)
	}
}

func TestGenerateEmptyAnswer(t *testing.T) {
	svc := NewService(&stubLLM{answer: "   "}, log.New(io.Discard, "", 0))
	if answer := svc.Generate(context.Background(), "q", nil); !IsErrorAnswer(answer) {
		t.Fatalf("expected error answer for empty output, got %q", answer)
	}
}

func TestGenerateWithoutClient(t *testing.T) {
	svc := NewService(nil, nil)
	if answer := svc.Generate(context.Background(), "q", nil); !IsErrorAnswer(answer) {
		t.Fatalf("expected error answer, got %q", answer)
	}
}

func TestFormatUserPromptWithoutContext(t *testing.T) {
	prompt := formatUserPrompt("Is dental covered?", "")
	if !strings.Contains(prompt, "no excerpts were retrieved") {
		t.Fatalf("expected empty context marker, got %q", prompt)
	}
}

func TestErrorAnswer(t *testing.T) {
	got := ErrorAnswer(errors.New("boom"))
	if got != "Error answering question: boom" {
		t.Fatalf("unexpected error answer %q", got)
	}
}
