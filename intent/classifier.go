package intent

import (
	"context"
	"io"
	"log"

	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/llm"
)

// Classifier tries the language model first and falls back to Rules on any
// failure. It never returns an error.
type Classifier struct {
	semantic *Semantic
	rules    Rules
	logger   *log.Logger
}

// NewClassifier builds a classifier. A nil client disables the model path.
func NewClassifier(client llm.Client, tuning config.IntentTuning, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Default()
	}

	c := &Classifier{
		rules:  NewRules(tuning),
		logger: logger,
	}
	if client != nil {
		c.semantic = NewSemantic(client, tuning.Timeout)
	}
	return c
}

// NewRulesOnly returns a classifier that never calls a model.
func NewRulesOnly(tuning config.IntentTuning) *Classifier {
	return NewClassifier(nil, tuning, log.New(io.Discard, "", 0))
}

func (c *Classifier) Classify(ctx context.Context, question string) Descriptor {
	if c.semantic == nil {
		return c.rules.Classify(question)
	}

	d, err := c.semantic.Classify(ctx, question)
	if err != nil {
		c.logger.Printf("intent model failed, using rule-based classification: %v", err)
		return c.rules.Classify(question)
	}
	return d
}
