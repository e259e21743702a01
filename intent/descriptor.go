// Package intent classifies insurance-policy questions into a structured
// descriptor that biases retrieval.
package intent

import (
	"strings"

	"github.com/fabfab/policynth/document"
)

// Kind is an intent label. Unknown labels normalize to General.
type Kind string

const (
	Definition     Kind = "definition"
	SpecificValue  Kind = "specific_value"
	CoverageCheck  Kind = "coverage_check"
	ExclusionCheck Kind = "exclusion_check"
	TimePeriod     Kind = "time_period"
	Limits         Kind = "limits"
	General        Kind = "general"
	PreExisting    Kind = "pre_existing"
	Maternity      Kind = "maternity"
	Deductible     Kind = "deductible"
	Coverage       Kind = "coverage"
	Exclusion      Kind = "exclusion"
)

// Source records which classifier path produced a descriptor.
type Source string

const (
	SourceLLM   Source = "llm"
	SourceRules Source = "rules"
)

// defaultSections is used when a descriptor carries no explicit priority
// sections, which is always the case for LLM-produced descriptors.
var defaultSections = map[Kind][]string{
	Definition:     {document.SectionDefinitions},
	SpecificValue:  {document.SectionCoverage, document.SectionLimits},
	CoverageCheck:  {document.SectionCoverage, document.SectionBenefits},
	ExclusionCheck: {document.SectionExclusions},
	TimePeriod:     {document.SectionConditions, document.SectionCoverage, document.SectionDefinitions},
	Limits:         {document.SectionLimits, document.SectionCoverage},
	PreExisting:    {document.SectionConditions, document.SectionExclusions, document.SectionDefinitions},
	Maternity:      {document.SectionCoverage, document.SectionBenefits, document.SectionConditions},
	Deductible:     {document.SectionLimits, document.SectionConditions},
	Coverage:       {document.SectionCoverage, document.SectionBenefits},
	Exclusion:      {document.SectionExclusions},
}

var knownKinds = map[Kind]struct{}{
	Definition: {}, SpecificValue: {}, CoverageCheck: {}, ExclusionCheck: {},
	TimePeriod: {}, Limits: {}, General: {}, PreExisting: {}, Maternity: {},
	Deductible: {}, Coverage: {}, Exclusion: {},
}

// Normalize maps a free-form label onto a known Kind.
func Normalize(label string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(label)))
	if _, ok := knownKinds[k]; ok {
		return k
	}
	return General
}

// Descriptor is the structured view of what a question is after.
type Descriptor struct {
	Type               Kind     `json:"intent_type"`
	LookingFor         string   `json:"looking_for,omitempty"`
	ExpectsNumbers     bool     `json:"expects_numbers"`
	ExpectsDefinitions bool     `json:"expects_definitions"`
	KeyTerms           []string `json:"key_terms"`
	Keywords           []string `json:"keywords,omitempty"`
	PrioritySections   []string `json:"priority_sections"`
	ExpectedContent    []string `json:"expected_content"`
	Confidence         float64  `json:"confidence"`
	Source             Source   `json:"source"`
}

// RankingSections returns the ordered section tags used for reranking.
func (d Descriptor) RankingSections() []string {
	if len(d.PrioritySections) > 0 {
		return d.PrioritySections
	}
	return defaultSections[Normalize(string(d.Type))]
}
