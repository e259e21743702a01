package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fabfab/policynth/llm"
)

const semanticInstruction = `Analyze this insurance policy question and classify the user's intent.

Question: %q

Classify into one of these categories:
1. definition - asking what something means
2. specific_value - asking for a specific number, amount, or value
3. coverage_check - asking whether something is covered
4. exclusion_check - asking whether something is excluded
5. time_period - asking about waiting periods, grace periods, durations
6. limits - asking about maximum or minimum amounts, caps, sub-limits

Respond with a single JSON object and nothing else:
{"intent_type": "<category>", "looking_for": "<what the user wants to find>", "expects_numbers": <true|false>, "key_concepts": ["<concept>", "..."]}`

type semanticResponse struct {
	IntentType     string   `json:"intent_type"`
	LookingFor     string   `json:"looking_for"`
	ExpectsNumbers bool     `json:"expects_numbers"`
	KeyConcepts    []string `json:"key_concepts"`
	Confidence     *float64 `json:"confidence"`
}

// Semantic classifies questions with a language model.
type Semantic struct {
	client  llm.Client
	timeout time.Duration
}

func NewSemantic(client llm.Client, timeout time.Duration) *Semantic {
	return &Semantic{client: client, timeout: timeout}
}

func (s *Semantic) Classify(ctx context.Context, question string) (Descriptor, error) {
	if s.client == nil {
		return Descriptor{}, fmt.Errorf("intent model not configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(semanticInstruction, question)},
	})
	if err != nil {
		return Descriptor{}, fmt.Errorf("generate intent: %w", err)
	}

	var resp semanticResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &resp); err != nil {
		return Descriptor{}, fmt.Errorf("decode intent response: %w", err)
	}
	if strings.TrimSpace(resp.IntentType) == "" {
		return Descriptor{}, fmt.Errorf("intent response missing intent_type")
	}

	confidence := 1.0
	if resp.Confidence != nil {
		confidence = min(max(*resp.Confidence, 0), 1)
	}

	terms := resp.KeyConcepts
	if terms == nil {
		terms = []string{}
	}

	return Descriptor{
		Type:             Normalize(resp.IntentType),
		LookingFor:       resp.LookingFor,
		ExpectsNumbers:   resp.ExpectsNumbers,
		KeyTerms:         terms,
		PrioritySections: []string{},
		ExpectedContent:  []string{},
		Confidence:       confidence,
		Source:           SourceLLM,
	}, nil
}

// stripCodeFence returns the body of the first ``` or ```json fence in s,
// ignoring any prose before it. Replies without a fence are returned trimmed.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	s = s[start+len("```"):]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
