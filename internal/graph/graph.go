// Package graph stores the agent's knowledge graph in Neo4j: concept nodes
// reinforced by encounters, and typed relations between them. Pruning and
// merging are driven by the consolidator.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Concept is a single node in the knowledge graph.
type Concept struct {
	Name           string    `json:"name"`
	Confidence     int       `json:"confidence"` // 1-10
	EncounterCount int       `json:"encounter_count"`
	LastReinforced time.Time `json:"last_reinforced"`
}

// Relation links two concepts with a typed, weighted edge.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
	Strength     int    `json:"strength"` // 1-10
}

// Graph wraps the Neo4j driver.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New connects to Neo4j and verifies connectivity.
func New(uri, user, password string, logger *zap.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	logger.Info("Neo4j connected")
	return &Graph{driver: driver, logger: logger}, nil
}

// EnsureConstraints creates the uniqueness constraint on concept names.
func (g *Graph) EnsureConstraints(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`CREATE CONSTRAINT concept_name IF NOT EXISTS
		 FOR (c:Concept) REQUIRE c.name IS UNIQUE`, nil)
	if err != nil {
		return fmt.Errorf("ensure constraints: %w", err)
	}
	return nil
}

// Close shuts down the driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
