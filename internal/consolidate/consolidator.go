// Package consolidate bounds the agent's long-term storage. It runs on its
// own longer period, pruning aged logs and memories, weak relations, and
// duplicate concepts, then enforces absolute row ceilings oldest-first.
package consolidate

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// JournalStore is the relational surface the consolidator prunes.
type JournalStore interface {
	DeleteCognitiveLogsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteEpisodicBefore(ctx context.Context, cutoff time.Time) (int, error)
	CapCognitiveLogs(ctx context.Context, max int) (int, error)
}

// KnowledgeGraph is the graph surface the consolidator prunes.
type KnowledgeGraph interface {
	PruneWeakRelations(ctx context.Context, floor int) (int, error)
	MergeDuplicateConcepts(ctx context.Context) (int, error)
	CapConcepts(ctx context.Context, max int) (int, error)
	CapRelations(ctx context.Context, max int) (int, error)
}

// Options hold the retention windows and ceilings.
type Options struct {
	LogRetention        time.Duration
	EpisodicRetention   time.Duration
	MinRelationStrength int
	MaxConcepts         int
	MaxRelations        int
	MaxLogEntries       int
}

func (o *Options) applyDefaults() {
	if o.LogRetention == 0 {
		o.LogRetention = 7 * 24 * time.Hour
	}
	if o.EpisodicRetention == 0 {
		o.EpisodicRetention = 30 * 24 * time.Hour
	}
	if o.MinRelationStrength == 0 {
		o.MinRelationStrength = 3
	}
	if o.MaxConcepts == 0 {
		o.MaxConcepts = 5000
	}
	if o.MaxRelations == 0 {
		o.MaxRelations = 20000
	}
	if o.MaxLogEntries == 0 {
		o.MaxLogEntries = 10000
	}
}

// Report summarizes one consolidation run.
type Report struct {
	LogsDeleted      int `json:"logs_deleted"`
	EpisodicsDeleted int `json:"episodics_deleted"`
	RelationsPruned  int `json:"relations_pruned"`
	ConceptsMerged   int `json:"concepts_merged"`
	ConceptsCapped   int `json:"concepts_capped"`
	RelationsCapped  int `json:"relations_capped"`
	LogsCapped       int `json:"logs_capped"`
	StepErrors       int `json:"step_errors"`
}

// Total returns the number of rows removed across all steps.
func (r Report) Total() int {
	return r.LogsDeleted + r.EpisodicsDeleted + r.RelationsPruned +
		r.ConceptsMerged + r.ConceptsCapped + r.RelationsCapped + r.LogsCapped
}

// Consolidator runs the pruning passes. Each step is independently guarded;
// a failure in one never blocks the others. The routines tolerate partial
// completion since the stores give no cross-entity transaction guarantee.
type Consolidator struct {
	journal JournalStore
	graph   KnowledgeGraph
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a consolidator.
func New(journal JournalStore, graph KnowledgeGraph, opts Options, logger *zap.Logger) *Consolidator {
	opts.applyDefaults()
	return &Consolidator{
		journal: journal,
		graph:   graph,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock replaces the time source, for tests.
func (c *Consolidator) SetClock(now func() time.Time) { c.now = now }

// Run executes the retention steps in order, then the limit-enforcement
// pass. Running twice with no new data in between is a no-op the second time.
func (c *Consolidator) Run(ctx context.Context) Report {
	var report Report
	now := c.now()

	if n, err := c.journal.DeleteCognitiveLogsBefore(ctx, now.Add(-c.opts.LogRetention)); err != nil {
		report.StepErrors++
		c.logger.Warn("log retention step failed", zap.Error(err))
	} else {
		report.LogsDeleted = n
	}

	if n, err := c.journal.DeleteEpisodicBefore(ctx, now.Add(-c.opts.EpisodicRetention)); err != nil {
		report.StepErrors++
		c.logger.Warn("episodic retention step failed", zap.Error(err))
	} else {
		report.EpisodicsDeleted = n
	}

	if n, err := c.graph.PruneWeakRelations(ctx, c.opts.MinRelationStrength); err != nil {
		report.StepErrors++
		c.logger.Warn("relation pruning step failed", zap.Error(err))
	} else {
		report.RelationsPruned = n
	}

	if n, err := c.graph.MergeDuplicateConcepts(ctx); err != nil {
		report.StepErrors++
		c.logger.Warn("concept merge step failed", zap.Error(err))
	} else {
		report.ConceptsMerged = n
	}

	limits := c.EnforceLimits(ctx)
	report.ConceptsCapped = limits.ConceptsCapped
	report.RelationsCapped = limits.RelationsCapped
	report.LogsCapped = limits.LogsCapped
	report.StepErrors += limits.StepErrors

	c.logger.Info("consolidation complete",
		zap.Int("removed", report.Total()),
		zap.Int("step_errors", report.StepErrors))
	return report
}

// EnforceLimits caps absolute row counts, deleting oldest-first once a table
// exceeds its ceiling. This keeps the knowledge graph bounded under
// unbounded conversation volume.
func (c *Consolidator) EnforceLimits(ctx context.Context) Report {
	var report Report

	if n, err := c.graph.CapConcepts(ctx, c.opts.MaxConcepts); err != nil {
		report.StepErrors++
		c.logger.Warn("concept cap step failed", zap.Error(err))
	} else {
		report.ConceptsCapped = n
	}

	if n, err := c.graph.CapRelations(ctx, c.opts.MaxRelations); err != nil {
		report.StepErrors++
		c.logger.Warn("relation cap step failed", zap.Error(err))
	} else {
		report.RelationsCapped = n
	}

	if n, err := c.journal.CapCognitiveLogs(ctx, c.opts.MaxLogEntries); err != nil {
		report.StepErrors++
		c.logger.Warn("log cap step failed", zap.Error(err))
	} else {
		report.LogsCapped = n
	}

	return report
}
