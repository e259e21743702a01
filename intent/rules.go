package intent

import (
	"regexp"
	"strings"

	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/document"
)

type lexiconRule struct {
	kind     Kind
	phrases  []string
	priority []string
	expected []string
}

// Checked in order; the first rule with a phrase present wins.
var lexiconRules = []lexiconRule{
	{
		kind:     TimePeriod,
		phrases:  []string{"grace period", "waiting period", "cooling period"},
		priority: []string{document.SectionConditions, document.SectionCoverage, document.SectionDefinitions},
		expected: []string{"period", "days", "months", "grace", "waiting"},
	},
	{
		kind:     PreExisting,
		phrases:  []string{"pre-existing", "pre existing", "ped"},
		priority: []string{document.SectionConditions, document.SectionExclusions, document.SectionDefinitions},
		expected: []string{"pre-existing", "months", "waiting", "period"},
	},
	{
		kind:     Maternity,
		phrases:  []string{"maternity", "pregnancy", "childbirth"},
		priority: []string{document.SectionCoverage, document.SectionBenefits, document.SectionConditions},
		expected: []string{"maternity", "pregnancy", "months", "covered"},
	},
	{
		kind:     Deductible,
		phrases:  []string{"deductible", "co-pay", "copay", "excess"},
		priority: []string{document.SectionLimits, document.SectionConditions},
		expected: []string{"deductible", "excess", "amount", "percentage"},
	},
}

var (
	specificValuePatterns = []string{"what is the", "how much is the", "what's the", "how many", "how long is the", "what are the limits"}
	durationWords         = []string{"days", "months", "years", "period", "duration"}
	amountWords           = []string{"amount", "limit", "maximum", "minimum", "sum"}
	coverageWords         = []string{"covered", "coverage", "benefit", "include", "does cover"}
	exclusionWords        = []string{"excluded", "exclusion", "not covered", "does not cover"}
	definitionPrefixes    = []string{"what is", "define", "what does", "meaning of"}
	definitionBlockers    = []string{"amount", "limit", "period", "days", "months"}

	numericalIndicators = []string{
		"how much", "how many", "what is the amount", "what is the limit", "how long",
		"duration", "period", "days", "months", "years", "percentage", "rate", "cost", "premium",
	}
	definitionIndicators = []string{"what is", "what does", "define", "definition", "meaning", "explain", "what are"}

	keyTermLexicon = []string{
		"grace period", "waiting period", "cooling period", "pre-existing", "pre existing",
		"maternity", "pregnancy", "deductible", "co-pay", "copay", "excess", "sum insured",
		"coverage limit", "room rent", "icu charges", "hospitalization", "outpatient",
		"cashless", "reimbursement", "claim settlement", "no claim discount", "ncd", "bonus",
	}
)

var (
	wordPattern    = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	phrasePatterns = compilePhrases()
)

// compilePhrases anchors each phrase at a word start and lets it end in a
// plural or "-ment" suffix, so "waiting periods" and "co-payment" match but
// "stopped" does not match "ped".
func compilePhrases() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	add := func(phrase string) {
		if _, ok := patterns[phrase]; !ok {
			patterns[phrase] = regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `(?:s|es|ment|ments)?\b`)
		}
	}
	for _, rule := range lexiconRules {
		for _, phrase := range rule.phrases {
			add(phrase)
		}
	}
	for _, term := range keyTermLexicon {
		add(term)
	}
	return patterns
}

// Rules is the deterministic classifier. Classify is a pure function of the
// question text and the configured confidences.
type Rules struct {
	tuning config.IntentTuning
}

func NewRules(tuning config.IntentTuning) Rules {
	return Rules{tuning: tuning}
}

func (r Rules) Classify(question string) Descriptor {
	q := strings.ToLower(strings.TrimSpace(question))

	d := r.cascade(q)
	d.Source = SourceRules
	d.ExpectsNumbers = containsAny(q, numericalIndicators)
	d.ExpectsDefinitions = containsAny(q, definitionIndicators)
	d.KeyTerms = matchLexicon(q)
	d.Keywords = wordPattern.FindAllString(q, -1)
	if d.Keywords == nil {
		d.Keywords = []string{}
	}
	return d
}

func (r Rules) cascade(q string) Descriptor {
	for _, rule := range lexiconRules {
		for _, phrase := range rule.phrases {
			if phrasePatterns[phrase].MatchString(q) {
				return descriptor(rule.kind, r.tuning.LexiconConfidence, rule.priority, rule.expected)
			}
		}
	}

	if containsAny(q, specificValuePatterns) {
		switch {
		case containsAny(q, durationWords):
			return descriptor(TimePeriod, r.tuning.ShapeConfidence,
				[]string{document.SectionCoverage, document.SectionConditions, document.SectionLimits},
				[]string{"days", "months", "years", "period"})
		case containsAny(q, amountWords):
			return descriptor(Limits, r.tuning.ShapeConfidence,
				[]string{document.SectionLimits, document.SectionCoverage},
				[]string{"limit", "maximum", "up to", "amount"})
		default:
			return descriptor(SpecificValue, r.tuning.SpecificValueConfidence,
				[]string{document.SectionCoverage, document.SectionLimits},
				[]string{"amount", "limit", "covered"})
		}
	}

	if containsAny(q, coverageWords) {
		return descriptor(Coverage, r.tuning.CategoryConfidence,
			[]string{document.SectionCoverage, document.SectionBenefits},
			[]string{"covered", "benefit", "pay", "reimburse"})
	}
	if containsAny(q, exclusionWords) {
		return descriptor(Exclusion, r.tuning.CategoryConfidence,
			[]string{document.SectionExclusions},
			[]string{"excluded", "not covered", "exception"})
	}

	if hasAnyPrefix(q, definitionPrefixes) && !containsAny(q, definitionBlockers) {
		return descriptor(Definition, r.tuning.DefinitionConfidence,
			[]string{document.SectionDefinitions},
			[]string{"means", "defined as", "refers to"})
	}

	return descriptor(General, 0, []string{}, []string{})
}

func descriptor(kind Kind, confidence float64, priority, expected []string) Descriptor {
	return Descriptor{
		Type:             kind,
		Confidence:       confidence,
		PrioritySections: append([]string{}, priority...),
		ExpectedContent:  append([]string{}, expected...),
	}
}

func matchLexicon(q string) []string {
	terms := []string{}
	for _, term := range keyTermLexicon {
		if phrasePatterns[term].MatchString(q) {
			terms = append(terms, term)
		}
	}
	return terms
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
