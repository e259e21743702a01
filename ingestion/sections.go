package ingestion

import (
	"strings"

	"github.com/fabfab/policynth/document"
)

type sectionKeywords struct {
	section  string
	keywords []string
}

// Order matters: "exclusions" headings often mention coverage ("what is not
// covered"), so they are checked first.
var headingKeywords = []sectionKeywords{
	{document.SectionExclusions, []string{"exclusion", "excluded", "not covered", "what is not"}},
	{document.SectionDefinitions, []string{"definition", "meaning", "interpretation", "glossary"}},
	{document.SectionLimits, []string{"limit", "sub-limit", "sum insured", "maximum", "deductible", "co-payment", "copay"}},
	{document.SectionConditions, []string{"condition", "waiting period", "grace period", "claim procedure", "claims", "renewal", "cancellation", "eligibility"}},
	{document.SectionBenefits, []string{"benefit", "bonus", "discount", "wellness", "add-on"}},
	{document.SectionCoverage, []string{"coverage", "cover", "scope", "what is covered", "insuring clause"}},
}

var bodyKeywords = []sectionKeywords{
	{document.SectionExclusions, []string{"excluded", "not covered", "shall not be liable", "does not cover", "exclusion"}},
	{document.SectionDefinitions, []string{"means", "defined as", "shall mean", "refers to"}},
	{document.SectionLimits, []string{"limit", "maximum", "up to", "sum insured", "capped", "% of"}},
	{document.SectionConditions, []string{"waiting period", "grace period", "provided that", "subject to", "must be", "within"}},
	{document.SectionBenefits, []string{"benefit", "bonus", "discount", "reimburse", "health check"}},
	{document.SectionCoverage, []string{"covered", "covers", "indemnify", "we will pay", "coverage"}},
}

// ClassifySection assigns a section tag from the heading first, then from
// keyword counts in the body. Ties in the body go to the earlier entry of
// bodyKeywords. Text with no signal is general.
func ClassifySection(heading, text string) string {
	h := strings.ToLower(heading)
	if h != "" {
		for _, entry := range headingKeywords {
			if containsAny(h, entry.keywords) {
				return entry.section
			}
		}
	}

	body := strings.ToLower(text)
	best, bestCount := document.SectionGeneral, 0
	for _, entry := range bodyKeywords {
		count := 0
		for _, kw := range entry.keywords {
			count += strings.Count(body, kw)
		}
		if count > bestCount {
			best, bestCount = entry.section, count
		}
	}
	return best
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
