package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Reinforce records an encounter with a concept: the encounter count is
// incremented and confidence grows by one, capped at 10. Unknown concepts
// are created with confidence 1.
func (g *Graph) Reinforce(ctx context.Context, name string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (c:Concept {name: $name})
		 ON CREATE SET c.confidence = 1, c.encounter_count = 1, c.last_reinforced = datetime()
		 ON MATCH SET c.encounter_count = c.encounter_count + 1,
		              c.confidence = CASE WHEN c.confidence + 1 > 10 THEN 10 ELSE c.confidence + 1 END,
		              c.last_reinforced = datetime()`,
		map[string]interface{}{"name": name})
	if err != nil {
		return fmt.Errorf("reinforce concept %s: %w", name, err)
	}
	g.logger.Debug("concept reinforced", zap.String("name", name))
	return nil
}

// RecentConcepts returns the n most recently reinforced concepts.
func (g *Graph) RecentConcepts(ctx context.Context, n int) ([]Concept, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Concept)
		 RETURN c.name, c.confidence, c.encounter_count, c.last_reinforced
		 ORDER BY c.last_reinforced DESC
		 LIMIT $n`,
		map[string]interface{}{"n": n})
	if err != nil {
		return nil, fmt.Errorf("recent concepts: %w", err)
	}

	var concepts []Concept
	for result.Next(ctx) {
		rec := result.Record()
		name, _ := rec.Get("c.name")
		confidence, _ := rec.Get("c.confidence")
		count, _ := rec.Get("c.encounter_count")
		last, _ := rec.Get("c.last_reinforced")

		c := Concept{
			Name:           name.(string),
			Confidence:     int(confidence.(int64)),
			EncounterCount: int(count.(int64)),
		}
		if t, ok := last.(time.Time); ok {
			c.LastReinforced = t
		}
		concepts = append(concepts, c)
	}
	return concepts, nil
}

// CountConcepts returns the total number of concept nodes.
func (g *Graph) CountConcepts(ctx context.Context) (int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (c:Concept) RETURN count(c) AS n`, nil)
	if err != nil {
		return 0, fmt.Errorf("count concepts: %w", err)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("n"); ok {
			return int(v.(int64)), nil
		}
	}
	return 0, nil
}

// CapConcepts deletes the oldest-reinforced concepts until at most max
// remain. Returns the number deleted.
func (g *Graph) CapConcepts(ctx context.Context, max int) (int, error) {
	total, err := g.CountConcepts(ctx)
	if err != nil {
		return 0, err
	}
	if total <= max {
		return 0, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Concept)
		 WITH c ORDER BY c.last_reinforced ASC
		 LIMIT $excess
		 DETACH DELETE c
		 RETURN count(c) AS deleted`,
		map[string]interface{}{"excess": total - max})
	if err != nil {
		return 0, fmt.Errorf("cap concepts: %w", err)
	}

	deleted := 0
	if result.Next(ctx) {
		if v, ok := result.Record().Get("deleted"); ok {
			deleted = int(v.(int64))
		}
	}
	if deleted > 0 {
		g.logger.Info("concept cap enforced",
			zap.Int("deleted", deleted),
			zap.Int("max", max))
	}
	return deleted, nil
}

// MergeDuplicateConcepts consolidates concepts whose names differ only in
// case, keeping the highest-confidence node of each group and deleting the
// rest. Returns the number of nodes removed.
func (g *Graph) MergeDuplicateConcepts(ctx context.Context) (int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Concept)
		 WITH toLower(c.name) AS key, collect(c) AS nodes
		 WHERE size(nodes) > 1
		 UNWIND nodes AS n
		 WITH key, nodes, n ORDER BY n.confidence DESC
		 WITH key, collect(n) AS ordered
		 UNWIND ordered[1..] AS dup
		 DETACH DELETE dup
		 RETURN count(dup) AS removed`, nil)
	if err != nil {
		return 0, fmt.Errorf("merge duplicate concepts: %w", err)
	}

	removed := 0
	if result.Next(ctx) {
		if v, ok := result.Record().Get("removed"); ok {
			removed = int(v.(int64))
		}
	}
	if removed > 0 {
		g.logger.Info("duplicate concepts merged", zap.Int("removed", removed))
	}
	return removed, nil
}
