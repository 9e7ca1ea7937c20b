package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Relate creates or strengthens a typed relation between two concepts.
// Strength grows by one per call, capped at 10.
func (g *Graph) Relate(ctx context.Context, from, to, relationType string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (a:Concept {name: $from}), (b:Concept {name: $to})
		 MERGE (a)-[r:RELATES_TO {type: $type}]->(b)
		 ON CREATE SET r.strength = 1
		 ON MATCH SET r.strength = CASE WHEN r.strength + 1 > 10 THEN 10 ELSE r.strength + 1 END`,
		map[string]interface{}{
			"from": from,
			"to":   to,
			"type": relationType,
		})
	if err != nil {
		return fmt.Errorf("relate %s -> %s: %w", from, to, err)
	}
	return nil
}

// Relations returns all outgoing relations for a concept.
func (g *Graph) Relations(ctx context.Context, name string) ([]Relation, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Concept {name: $name})-[r:RELATES_TO]->(b:Concept)
		 RETURN b.name, r.type, r.strength`,
		map[string]interface{}{"name": name})
	if err != nil {
		return nil, fmt.Errorf("relations of %s: %w", name, err)
	}

	var relations []Relation
	for result.Next(ctx) {
		rec := result.Record()
		to, _ := rec.Get("b.name")
		relType, _ := rec.Get("r.type")
		strength, _ := rec.Get("r.strength")
		relations = append(relations, Relation{
			From:         name,
			To:           to.(string),
			RelationType: relType.(string),
			Strength:     int(strength.(int64)),
		})
	}
	return relations, nil
}

// PruneWeakRelations deletes relations with strength below floor.
// Returns the number deleted.
func (g *Graph) PruneWeakRelations(ctx context.Context, floor int) (int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH ()-[r:RELATES_TO]->()
		 WHERE r.strength < $floor
		 DELETE r
		 RETURN count(r) AS pruned`,
		map[string]interface{}{"floor": floor})
	if err != nil {
		return 0, fmt.Errorf("prune weak relations: %w", err)
	}

	pruned := 0
	if result.Next(ctx) {
		if v, ok := result.Record().Get("pruned"); ok {
			pruned = int(v.(int64))
		}
	}
	if pruned > 0 {
		g.logger.Info("weak relations pruned",
			zap.Int("pruned", pruned),
			zap.Int("floor", floor))
	}
	return pruned, nil
}

// CountRelations returns the total number of relation edges.
func (g *Graph) CountRelations(ctx context.Context) (int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH ()-[r:RELATES_TO]->() RETURN count(r) AS n`, nil)
	if err != nil {
		return 0, fmt.Errorf("count relations: %w", err)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("n"); ok {
			return int(v.(int64)), nil
		}
	}
	return 0, nil
}

// CapRelations deletes the weakest relations until at most max remain.
func (g *Graph) CapRelations(ctx context.Context, max int) (int, error) {
	total, err := g.CountRelations(ctx)
	if err != nil {
		return 0, err
	}
	if total <= max {
		return 0, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH ()-[r:RELATES_TO]->()
		 WITH r ORDER BY r.strength ASC
		 LIMIT $excess
		 DELETE r
		 RETURN count(r) AS deleted`,
		map[string]interface{}{"excess": total - max})
	if err != nil {
		return 0, fmt.Errorf("cap relations: %w", err)
	}

	deleted := 0
	if result.Next(ctx) {
		if v, ok := result.Record().Get("deleted"); ok {
			deleted = int(v.(int64))
		}
	}
	if deleted > 0 {
		g.logger.Info("relation cap enforced",
			zap.Int("deleted", deleted),
			zap.Int("max", max))
	}
	return deleted, nil
}
