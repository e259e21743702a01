// Package chat turns a question and its ranked policy excerpts into an answer.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/policynth/document"
	"github.com/fabfab/policynth/llm"
)

const errorAnswerPrefix = "Error answering question: "

// ErrorAnswer renders a per-question failure as the answer text returned to
// the caller.
func ErrorAnswer(err error) string {
	return errorAnswerPrefix + err.Error()
}

// IsErrorAnswer reports whether answer was produced by ErrorAnswer.
func IsErrorAnswer(answer string) bool {
	return strings.HasPrefix(answer, errorAnswerPrefix)
}

type Service struct {
	llm    llm.Client
	logger *log.Logger
}

func NewService(llmClient llm.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		llm:    llmClient,
		logger: logger,
	}
}

// Generate makes exactly one model call and never returns an empty string. On
// failure the answer is an ErrorAnswer describing the cause.
func (s *Service) Generate(ctx context.Context, question string, chunks []document.ScoredChunk) string {
	if s.llm == nil {
		return ErrorAnswer(fmt.Errorf("llm client is not configured"))
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt()},
		{Role: llm.RoleUser, Content: formatUserPrompt(question, buildContextPrompt(chunks))},
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		s.logger.Printf("answer generation failed: %v", err)
		return ErrorAnswer(err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrorAnswer(fmt.Errorf("%w: empty answer", llm.ErrGenerationRejected))
	}
	return answer
}

func buildContextPrompt(chunks []document.ScoredChunk) string {
	var sb strings.Builder
	for i := range chunks {
		chunk := &chunks[i].Chunk
		sb.WriteString(fmt.Sprintf("Context %d [%s]", i+1, chunk.Type()))
		if heading := chunk.Heading(); heading != "" {
			sb.WriteString(" " + heading)
		}
		sb.WriteString(":\n")
		sb.WriteString(strings.TrimSpace(chunk.Text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func systemPrompt() string {
	return "You are an insurance policy analyst. Answer strictly from the policy excerpts supplied with each question. Quote exact figures, periods, percentages and conditions as written in the policy. If the excerpts do not contain the answer, say that the policy text provided does not specify it. Keep answers to one or two sentences."
}

func formatUserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\nPolicy excerpts, most relevant first:\n")
	if strings.TrimSpace(context) == "" {
		sb.WriteString("(no excerpts were retrieved)\n")
	} else {
		sb.WriteString(context)
	}
	sb.WriteString("\nAnswer the question using only these excerpts.")
	return sb.String()
}
