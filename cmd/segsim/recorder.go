package main

import (
	"fmt"
	"sync"

	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/persistence"
)

// recorder persists one simulation run incrementally. A nil recorder is safe
// to use; all methods are no-ops.
type recorder struct {
	mu            sync.Mutex
	db            *persistence.DB
	snapshotEvery int

	runID string
	saved int // series values already written
}

func newRecorder(db *persistence.DB, snapshotEvery int) *recorder {
	if db == nil {
		return nil
	}
	return &recorder{db: db, snapshotEvery: snapshotEvery}
}

// begin starts a new run for the simulation's current parameters, storing
// the effective seed.
func (r *recorder) begin(sim *engine.Simulation) (string, error) {
	if r == nil {
		return "", nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p := sim.Params()
	p.Seed = sim.Seed()
	run, err := r.db.CreateRun(p)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	r.runID = run.ID
	r.saved = 0
	return run.ID, nil
}

// flush writes series values recorded since the last flush.
func (r *recorder) flush(sim *engine.Simulation) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(sim)
}

func (r *recorder) flushLocked(sim *engine.Simulation) error {
	if r.runID == "" {
		return nil
	}
	series := sim.Series()
	if len(series) <= r.saved {
		return nil
	}
	if err := r.db.SaveMetrics(r.runID, uint64(r.saved), series[r.saved:]); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	r.saved = len(series)
	return nil
}

// tick stores a snapshot when the tick is on the snapshot period.
func (r *recorder) tick(sim *engine.Simulation, tick uint64) error {
	if r == nil || r.snapshotEvery <= 0 || tick%uint64(r.snapshotEvery) != 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runID == "" {
		return nil
	}
	if err := r.db.SaveSnapshot(r.runID, sim.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// finish flushes the series, stores the final snapshot and closes the run.
func (r *recorder) finish(sim *engine.Simulation) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runID == "" {
		return nil
	}

	if err := r.flushLocked(sim); err != nil {
		return err
	}
	if err := r.db.SaveSnapshot(r.runID, sim.Snapshot()); err != nil {
		return fmt.Errorf("save final snapshot: %w", err)
	}
	if err := r.db.FinishRun(r.runID, sim.Tick()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	r.runID = ""
	return nil
}
