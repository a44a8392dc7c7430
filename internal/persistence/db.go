// Package persistence provides SQLite-based storage of simulation runs:
// their parameters, segregation series and grid snapshots.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/segsim/internal/agents"
	"github.com/talgya/segsim/internal/engine"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Run is one stored simulation run.
type Run struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Params    engine.Params `json:"params"`
	Ticks     uint64        `json:"ticks"`
}

type runRow struct {
	ID        string `db:"id"`
	CreatedAt int64  `db:"created_at"`
	Params    string `db:"params_json"`
	Ticks     int64  `db:"ticks"`
}

func (r runRow) run() (Run, error) {
	var p engine.Params
	if err := json.Unmarshal([]byte(r.Params), &p); err != nil {
		return Run{}, fmt.Errorf("decode params of run %s: %w", r.ID, err)
	}
	return Run{
		ID:        r.ID,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		Params:    p,
		Ticks:     uint64(r.Ticks),
	}, nil
}

type snapshotRow struct {
	AgentID int    `db:"agent_id"`
	X       int    `db:"x"`
	Y       int    `db:"y"`
	Kind    string `db:"kind"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		rate REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (run_id, tick, agent_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun records a new run with the given parameters and returns it.
func (db *DB) CreateRun(p engine.Params) (Run, error) {
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return Run{}, fmt.Errorf("encode params: %w", err)
	}

	run := Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Params:    p,
	}
	_, err = db.conn.Exec(
		"INSERT INTO runs (id, created_at, seed, params_json, ticks) VALUES (?, ?, ?, ?, 0)",
		run.ID, run.CreatedAt.UnixNano(), p.Seed, string(paramsJSON),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	slog.Debug("run created", "run", run.ID, "seed", p.Seed)
	return run, nil
}

// SaveMetrics stores series[i] as the rate measured after startTick+i ticks.
// Existing values for those ticks are replaced.
func (db *DB) SaveMetrics(runID string, startTick uint64, series []float64) error {
	if len(series) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT OR REPLACE INTO metrics (run_id, tick, rate) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rate := range series {
		if _, err := stmt.Exec(runID, startTick+uint64(i), rate); err != nil {
			return fmt.Errorf("insert metric %d: %w", startTick+uint64(i), err)
		}
	}

	return tx.Commit()
}

// SaveSnapshot writes every resident's position at snap.Tick (full replace
// for that tick).
func (db *DB) SaveSnapshot(runID string, snap engine.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshots WHERE run_id = ? AND tick = ?", runID, snap.Tick); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO snapshots
		(run_id, tick, agent_id, x, y, kind)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range snap.Agents {
		if _, err := stmt.Exec(runID, snap.Tick, int(a.ID), a.X, a.Y, a.Kind); err != nil {
			return fmt.Errorf("insert snapshot agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// FinishRun records the number of ticks the run completed.
func (db *DB) FinishRun(runID string, ticks uint64) error {
	res, err := db.conn.Exec("UPDATE runs SET ticks = ? WHERE id = ?", ticks, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	slog.Info("run finished", "run", runID, "ticks", ticks)
	return nil
}

// GetRun loads a single run.
func (db *DB) GetRun(runID string) (Run, error) {
	var row runRow
	err := db.conn.Get(&row, "SELECT id, created_at, params_json, ticks FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	return row.run()
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var rows []runRow
	err := db.conn.Select(&rows,
		"SELECT id, created_at, params_json, ticks FROM runs ORDER BY created_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		r, err := row.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// LoadSeries returns the stored segregation rates of a run in tick order.
func (db *DB) LoadSeries(runID string) ([]float64, error) {
	var series []float64
	err := db.conn.Select(&series,
		"SELECT rate FROM metrics WHERE run_id = ? ORDER BY tick",
		runID,
	)
	return series, err
}

// SnapshotTicks lists the ticks that have a stored snapshot.
func (db *DB) SnapshotTicks(runID string) ([]uint64, error) {
	var ticks []int64
	err := db.conn.Select(&ticks,
		"SELECT DISTINCT tick FROM snapshots WHERE run_id = ? ORDER BY tick",
		runID,
	)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(ticks))
	for i, t := range ticks {
		out[i] = uint64(t)
	}
	return out, nil
}

// LoadSnapshot rebuilds the snapshot of a run at tick.
func (db *DB) LoadSnapshot(runID string, tick uint64) (engine.Snapshot, error) {
	run, err := db.GetRun(runID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	var rows []snapshotRow
	err = db.conn.Select(&rows,
		"SELECT agent_id, x, y, kind FROM snapshots WHERE run_id = ? AND tick = ? ORDER BY agent_id",
		runID, tick,
	)
	if err != nil {
		return engine.Snapshot{}, err
	}
	if len(rows) == 0 {
		return engine.Snapshot{}, fmt.Errorf("snapshot %s@%d: %w", runID, tick, ErrNotFound)
	}

	snap := engine.Snapshot{
		Tick:   tick,
		Width:  run.Params.Width,
		Height: run.Params.Height,
		Agents: make([]engine.AgentView, 0, len(rows)),
	}
	for _, row := range rows {
		kind, err := agents.ParseKind(row.Kind)
		if err != nil {
			return engine.Snapshot{}, fmt.Errorf("snapshot agent %d: %w", row.AgentID, err)
		}
		snap.Agents = append(snap.Agents, engine.AgentView{
			ID:    agents.AgentID(row.AgentID),
			X:     row.X,
			Y:     row.Y,
			Kind:  kind.String(),
			Color: kind.Color(),
		})
	}
	return snap, nil
}
