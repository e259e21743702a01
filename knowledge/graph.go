// Package knowledge mirrors request diagnostics into a Neo4j graph so
// retrieval behaviour can be inspected across requests.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/policynth/diagnostics"
)

// GraphRecorder writes
// (:Request)-[:HAS_CHUNK]->(:Chunk) and
// (:Request)-[:ASKED]->(:Question)-[:RETRIEVED {rank, score}]->(:Chunk).
type GraphRecorder struct {
	driver neo4j.DriverWithContext
}

var _ diagnostics.Recorder = (*GraphRecorder)(nil)

func NewGraphRecorder(driver neo4j.DriverWithContext) *GraphRecorder {
	return &GraphRecorder{driver: driver}
}

func chunkID(requestID string, index int) string {
	return fmt.Sprintf("%s/%d", requestID, index)
}

func (g *GraphRecorder) Record(ctx context.Context, report diagnostics.Report) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if report.RequestID == "" {
		return fmt.Errorf("record diagnostics: missing request id")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (r:Request {id: $id})
			SET r.document = $document,
			    r.stage = $stage,
			    r.error = $error,
			    r.started_at = $started_at,
			    r.finished_at = $finished_at
		`, map[string]any{
			"id":          report.RequestID,
			"document":    report.DocumentRef,
			"stage":       report.Stage,
			"error":       report.Err,
			"started_at":  report.StartedAt,
			"finished_at": report.FinishedAt,
		}); err != nil {
			return nil, fmt.Errorf("upsert request node: %w", err)
		}

		for _, chunk := range report.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (r:Request {id: $request_id})
				MERGE (c:Chunk {id: $chunk_id})
				SET c.index = $chunk_index,
				    c.type = $chunk_type,
				    c.heading = $chunk_heading,
				    c.length = $chunk_length,
				    c.preview = $chunk_preview
				MERGE (r)-[:HAS_CHUNK {order: $chunk_index}]->(c)
			`, map[string]any{
				"request_id":    report.RequestID,
				"chunk_id":      chunkID(report.RequestID, chunk.Index),
				"chunk_index":   chunk.Index,
				"chunk_type":    chunk.Type,
				"chunk_heading": chunk.Heading,
				"chunk_length":  chunk.Length,
				"chunk_preview": chunk.Preview,
			}); err != nil {
				return nil, fmt.Errorf("upsert chunk node: %w", err)
			}
		}

		for _, q := range report.Questions {
			questionID := fmt.Sprintf("%s/q%d", report.RequestID, q.Position)
			if _, err := tx.Run(ctx, `
				MATCH (r:Request {id: $request_id})
				MERGE (q:Question {id: $question_id})
				SET q.text = $text,
				    q.intent_type = $intent_type,
				    q.intent_source = $intent_source,
				    q.confidence = $confidence,
				    q.looking_for = $looking_for,
				    q.error = $error
				MERGE (r)-[:ASKED {order: $position}]->(q)
			`, map[string]any{
				"request_id":    report.RequestID,
				"question_id":   questionID,
				"text":          q.Question,
				"intent_type":   q.IntentType,
				"intent_source": q.IntentSource,
				"confidence":    q.Confidence,
				"looking_for":   q.LookingFor,
				"error":         q.Err,
				"position":      q.Position,
			}); err != nil {
				return nil, fmt.Errorf("upsert question node: %w", err)
			}

			for _, hit := range q.Retrieved {
				if _, err := tx.Run(ctx, `
					MATCH (q:Question {id: $question_id}), (c:Chunk {id: $chunk_id})
					MERGE (q)-[rel:RETRIEVED]->(c)
					SET rel.rank = $rank,
					    rel.score = $score,
					    rel.similarity = $similarity
				`, map[string]any{
					"question_id": questionID,
					"chunk_id":    chunkID(report.RequestID, hit.ChunkIndex),
					"rank":        hit.Rank,
					"score":       hit.Score,
					"similarity":  hit.Similarity,
				}); err != nil {
					return nil, fmt.Errorf("link retrieved chunk: %w", err)
				}
			}
		}

		return nil, nil
	})
	return err
}

// SectionUsage counts how often each section type was retrieved for each
// intent type across all recorded requests.
type SectionUsage struct {
	IntentType  string
	SectionType string
	Retrievals  int
	MeanRank    float64
}

func (g *GraphRecorder) SectionUsage(ctx context.Context) ([]SectionUsage, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (q:Question)-[rel:RETRIEVED]->(c:Chunk)
		RETURN q.intent_type AS intent,
		       c.type AS section,
		       count(rel) AS retrievals,
		       avg(rel.rank) AS meanRank
		ORDER BY intent, retrievals DESC, section
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("run section usage query: %w", err)
	}

	usage := make([]SectionUsage, 0)
	for result.Next(ctx) {
		record := result.Record()
		intentVal, _ := record.Get("intent")
		sectionVal, _ := record.Get("section")
		countVal, _ := record.Get("retrievals")
		rankVal, _ := record.Get("meanRank")

		intentType, _ := intentVal.(string)
		section, _ := sectionVal.(string)
		count, _ := toInt(countVal)
		meanRank, _ := rankVal.(float64)
		usage = append(usage, SectionUsage{
			IntentType:  intentType,
			SectionType: section,
			Retrievals:  count,
			MeanRank:    meanRank,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("section usage result error: %w", err)
	}

	return usage, nil
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
