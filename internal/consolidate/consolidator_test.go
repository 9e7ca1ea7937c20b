package consolidate

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeJournal holds timestamped rows in memory.
type fakeJournal struct {
	logs      []time.Time
	episodics []time.Time
	failLogs  bool
}

func (f *fakeJournal) DeleteCognitiveLogsBefore(_ context.Context, cutoff time.Time) (int, error) {
	if f.failLogs {
		return 0, errors.New("pg down")
	}
	kept := f.logs[:0]
	deleted := 0
	for _, ts := range f.logs {
		if ts.Before(cutoff) {
			deleted++
		} else {
			kept = append(kept, ts)
		}
	}
	f.logs = kept
	return deleted, nil
}

func (f *fakeJournal) DeleteEpisodicBefore(_ context.Context, cutoff time.Time) (int, error) {
	kept := f.episodics[:0]
	deleted := 0
	for _, ts := range f.episodics {
		if ts.Before(cutoff) {
			deleted++
		} else {
			kept = append(kept, ts)
		}
	}
	f.episodics = kept
	return deleted, nil
}

func (f *fakeJournal) CapCognitiveLogs(_ context.Context, max int) (int, error) {
	if len(f.logs) <= max {
		return 0, nil
	}
	sort.Slice(f.logs, func(i, j int) bool { return f.logs[i].Before(f.logs[j]) })
	deleted := len(f.logs) - max
	f.logs = f.logs[deleted:]
	return deleted, nil
}

// fakeGraph tracks concepts by last-reinforced time and relations by strength.
type fakeGraph struct {
	concepts  map[string]time.Time
	strengths []int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{concepts: make(map[string]time.Time)}
}

func (f *fakeGraph) PruneWeakRelations(_ context.Context, floor int) (int, error) {
	kept := f.strengths[:0]
	pruned := 0
	for _, s := range f.strengths {
		if s < floor {
			pruned++
		} else {
			kept = append(kept, s)
		}
	}
	f.strengths = kept
	return pruned, nil
}

func (f *fakeGraph) MergeDuplicateConcepts(_ context.Context) (int, error) {
	return 0, nil
}

func (f *fakeGraph) CapConcepts(_ context.Context, max int) (int, error) {
	if len(f.concepts) <= max {
		return 0, nil
	}
	type pair struct {
		name string
		ts   time.Time
	}
	var pairs []pair
	for name, ts := range f.concepts {
		pairs = append(pairs, pair{name, ts})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ts.Before(pairs[j].ts) })
	deleted := 0
	for _, p := range pairs[:len(pairs)-max] {
		delete(f.concepts, p.name)
		deleted++
	}
	return deleted, nil
}

func (f *fakeGraph) CapRelations(_ context.Context, max int) (int, error) {
	if len(f.strengths) <= max {
		return 0, nil
	}
	deleted := len(f.strengths) - max
	f.strengths = f.strengths[:max]
	return deleted, nil
}

func newTestConsolidator(journal *fakeJournal, graph *fakeGraph, opts Options) (*Consolidator, time.Time) {
	c := New(journal, graph, opts, zap.NewNop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	return c, now
}

func TestRetentionWindows(t *testing.T) {
	journal := &fakeJournal{}
	graph := newFakeGraph()
	c, now := newTestConsolidator(journal, graph, Options{})

	journal.logs = []time.Time{
		now.Add(-8 * 24 * time.Hour), // beyond 7d retention
		now.Add(-time.Hour),
	}
	journal.episodics = []time.Time{
		now.Add(-31 * 24 * time.Hour), // beyond 30d retention
		now.Add(-10 * 24 * time.Hour),
	}
	graph.strengths = []int{1, 2, 3, 8} // floor 3 prunes two

	report := c.Run(context.Background())
	if report.LogsDeleted != 1 {
		t.Errorf("logs deleted = %d, want 1", report.LogsDeleted)
	}
	if report.EpisodicsDeleted != 1 {
		t.Errorf("episodics deleted = %d, want 1", report.EpisodicsDeleted)
	}
	if report.RelationsPruned != 2 {
		t.Errorf("relations pruned = %d, want 2", report.RelationsPruned)
	}
	if report.StepErrors != 0 {
		t.Errorf("step errors = %d, want 0", report.StepErrors)
	}
}

func TestLimitEnforcementExactCeilingOldestFirst(t *testing.T) {
	journal := &fakeJournal{}
	graph := newFakeGraph()
	c, now := newTestConsolidator(journal, graph, Options{MaxConcepts: 3})

	// Seed 6 concepts over the ceiling of 3, with distinct ages.
	names := []string{"a", "b", "c", "d", "e", "f"}
	for i, name := range names {
		graph.concepts[name] = now.Add(-time.Duration(len(names)-i) * time.Hour)
	}

	report := c.Run(context.Background())
	if report.ConceptsCapped != 3 {
		t.Errorf("concepts capped = %d, want 3", report.ConceptsCapped)
	}
	if len(graph.concepts) != 3 {
		t.Errorf("concepts remaining = %d, want exactly the ceiling", len(graph.concepts))
	}
	// The oldest three ("a", "b", "c") must be the ones removed.
	for _, name := range []string{"d", "e", "f"} {
		if _, ok := graph.concepts[name]; !ok {
			t.Errorf("newest concept %q was removed, want oldest-first eviction", name)
		}
	}
}

func TestSecondRunIsNoOp(t *testing.T) {
	journal := &fakeJournal{}
	graph := newFakeGraph()
	c, now := newTestConsolidator(journal, graph, Options{MaxConcepts: 2})

	journal.logs = []time.Time{now.Add(-30 * 24 * time.Hour), now}
	graph.strengths = []int{1, 5}
	graph.concepts["x"] = now.Add(-3 * time.Hour)
	graph.concepts["y"] = now.Add(-2 * time.Hour)
	graph.concepts["z"] = now.Add(-time.Hour)

	first := c.Run(context.Background())
	if first.Total() == 0 {
		t.Fatal("first run removed nothing, fixture is wrong")
	}

	second := c.Run(context.Background())
	if second.Total() != 0 {
		t.Errorf("second run removed %d rows, want idempotent no-op", second.Total())
	}
	if second.StepErrors != 0 {
		t.Errorf("second run errors = %d, want 0", second.StepErrors)
	}
}

func TestStepFailureDoesNotBlockOthers(t *testing.T) {
	journal := &fakeJournal{failLogs: true}
	graph := newFakeGraph()
	c, now := newTestConsolidator(journal, graph, Options{})

	journal.episodics = []time.Time{now.Add(-40 * 24 * time.Hour)}
	graph.strengths = []int{1}

	report := c.Run(context.Background())
	if report.StepErrors != 1 {
		t.Errorf("step errors = %d, want 1", report.StepErrors)
	}
	if report.EpisodicsDeleted != 1 {
		t.Error("episodic step did not run after log step failed")
	}
	if report.RelationsPruned != 1 {
		t.Error("relation step did not run after log step failed")
	}
}
