// Package document defines the chunk types shared by ingestion, indexing and retrieval.
package document

// Section tags carried in chunk metadata under MetaType.
const (
	SectionCoverage    = "coverage"
	SectionExclusions  = "exclusions"
	SectionDefinitions = "definitions"
	SectionLimits      = "limits"
	SectionConditions  = "conditions"
	SectionBenefits    = "benefits"
	SectionGeneral     = "general"
)

// Metadata keys.
const (
	MetaType    = "type"
	MetaHeading = "heading"
	MetaSource  = "source"
)

// Chunk is a contiguous span of document text. Index is the insertion order
// within the document and acts as the final ranking tie-breaker.
type Chunk struct {
	Index     int
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

// Type returns the section tag, falling back to general.
func (c Chunk) Type() string {
	if c.Metadata == nil {
		return SectionGeneral
	}
	if v, ok := c.Metadata[MetaType].(string); ok && v != "" {
		return v
	}
	return SectionGeneral
}

func (c Chunk) Heading() string {
	if c.Metadata == nil {
		return ""
	}
	v, _ := c.Metadata[MetaHeading].(string)
	return v
}

// Preview returns at most n runes of the chunk text with newlines flattened.
func (c Chunk) Preview(n int) string {
	runes := []rune(c.Text)
	for i, r := range runes {
		if r == '\n' || r == '\r' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}

// ScoredChunk is a retrieval result. Similarity is the base vector similarity
// and Score the final reranked value.
type ScoredChunk struct {
	Chunk      Chunk
	Score      float64
	Similarity float64
}
