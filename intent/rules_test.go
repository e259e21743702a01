package intent

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/policynth/config"
)

func rules() Rules {
	return NewRules(config.DefaultTuning().Intent)
}

func TestRulesGracePeriodExample(t *testing.T) {
	d := rules().Classify("What is the grace period for premium payment?")

	assert.Equal(t, TimePeriod, d.Type)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Contains(t, d.KeyTerms, "grace period")
	assert.Equal(t, []string{"conditions", "coverage", "definitions"}, d.PrioritySections)
	assert.Equal(t, []string{"period", "days", "months", "grace", "waiting"}, d.ExpectedContent)
	assert.True(t, d.ExpectsNumbers)
	assert.True(t, d.ExpectsDefinitions)
	assert.Equal(t, SourceRules, d.Source)
	assert.Equal(t, []string{"what", "is", "the", "grace", "period", "for", "premium", "payment"}, d.Keywords)
}

func TestRulesCascade(t *testing.T) {
	cases := []struct {
		question   string
		kind       Kind
		confidence float64
		first      string
	}{
		{"Is there a waiting period for PED?", TimePeriod, 0.95, "conditions"},
		{"How are pre-existing diseases handled?", PreExisting, 0.95, "conditions"},
		{"Are PED claims paid?", PreExisting, 0.95, "conditions"},
		{"Does the policy pay for childbirth?", Maternity, 0.95, "coverage"},
		{"Is there a co-pay on claims?", Deductible, 0.95, "limits"},
		{"What are the waiting periods for cataract surgery?", TimePeriod, 0.95, "conditions"},
		{"Are deductibles applied per claim?", Deductible, 0.95, "limits"},
		{"Is there a co-payment for senior citizens?", Deductible, 0.95, "limits"},
		{"How many days of hospitalization are required?", TimePeriod, 0.85, "coverage"},
		{"What is the maximum sum for room charges?", Limits, 0.85, "limits"},
		{"What is the no claim discount?", SpecificValue, 0.75, "coverage"},
		{"Are dental procedures covered under this plan?", Coverage, 0.70, "coverage"},
		{"Which treatments are excluded?", Exclusion, 0.70, "exclusions"},
		{"What does AYUSH mean?", Definition, 0.60, "definitions"},
		{"Define hospital", Definition, 0.60, "definitions"},
	}

	r := rules()
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			d := r.Classify(tc.question)
			assert.Equal(t, tc.kind, d.Type)
			assert.InDelta(t, tc.confidence, d.Confidence, 1e-9)
			require.NotEmpty(t, d.PrioritySections)
			assert.Equal(t, tc.first, d.PrioritySections[0])
			assert.NotEmpty(t, d.ExpectedContent)
		})
	}
}

func TestRulesCoverageWinsOverNotCovered(t *testing.T) {
	// "not covered" contains "covered", so the coverage branch is reached first.
	d := rules().Classify("Which items are not covered?")
	assert.Equal(t, Coverage, d.Type)
}

func TestRulesDefinitionBlockedByQuantities(t *testing.T) {
	d := rules().Classify("What is a day care period")
	assert.NotEqual(t, Definition, d.Type)
}

func TestRulesGeneralFallback(t *testing.T) {
	d := rules().Classify("Tell me about the insurer")
	assert.Equal(t, General, d.Type)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Empty(t, d.PrioritySections)
	assert.Empty(t, d.ExpectedContent)
	assert.NotNil(t, d.PrioritySections)
}

func TestRulesLexiconMatchesWholeWords(t *testing.T) {
	r := rules()
	assert.NotEqual(t, PreExisting, r.Classify("Why was my claim stopped?").Type)
	assert.NotEqual(t, Deductible, r.Classify("Is excessive noise a problem?").Type)
}

func TestRulesLexiconMatchesInflections(t *testing.T) {
	d := rules().Classify("Are grace periods and co-payments listed?")
	assert.Equal(t, TimePeriod, d.Type)
	assert.Equal(t, []string{"grace period", "co-pay"}, d.KeyTerms)
}

func TestRulesLexiconAlwaysHighestConfidence(t *testing.T) {
	r := rules()
	questions := []string{
		"How many days is the grace period?",
		"What is the amount of the deductible?",
		"Is maternity covered?",
		"Are pre existing conditions excluded?",
		"define cooling period",
	}
	for _, q := range questions {
		assert.InDelta(t, 0.95, r.Classify(q).Confidence, 1e-9, q)
	}
}

func TestRulesDeterministic(t *testing.T) {
	r := rules()
	questions := []string{
		"What is the grace period for premium payment?",
		"",
		"   ",
		"¿Qué es el periodo de gracia?",
		"How much is the ICU charges limit and room rent cap?",
	}
	for _, q := range questions {
		first := r.Classify(q)
		for i := 0; i < 5; i++ {
			if !reflect.DeepEqual(first, r.Classify(q)) {
				t.Fatalf("classification of %q is not deterministic", q)
			}
		}
	}
}

func TestRulesEmptyQuestion(t *testing.T) {
	d := rules().Classify("")
	assert.Equal(t, General, d.Type)
	assert.Empty(t, d.Keywords)
	assert.Empty(t, d.KeyTerms)
}

func TestRulesKeyTermsInLexiconOrder(t *testing.T) {
	d := rules().Classify("Does cashless cover room rent and ICU charges?")
	assert.Equal(t, []string{"room rent", "icu charges", "cashless"}, d.KeyTerms)
}

func TestRulesUsesConfiguredConfidences(t *testing.T) {
	tuning := config.DefaultTuning().Intent
	tuning.LexiconConfidence = 0.5
	d := NewRules(tuning).Classify("grace period?")
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}
