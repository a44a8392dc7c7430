package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/persistence"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "segsim version "+version) {
		t.Errorf("unexpected output %q", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("not JSON: %q", out)
	}
	if v["version"] != version {
		t.Errorf("unexpected version %v", v)
	}
}

func TestRunJSON(t *testing.T) {
	out, err := execute(t, "run", "--ticks", "12", "--seed", "9", "--json", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var s runSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, out)
	}
	if s.Ticks != 12 || len(s.Series) != 12 {
		t.Errorf("expected 12 ticks and values, got %d and %d", s.Ticks, len(s.Series))
	}
	if s.Seed != 9 {
		t.Errorf("expected seed 9, got %d", s.Seed)
	}
	if s.Series[0] != s.InitialRate {
		t.Errorf("first value %v should equal initial rate %v", s.Series[0], s.InitialRate)
	}
	if s.RunID != "" {
		t.Error("no run id expected without a database")
	}
}

func TestRunIsDeterministic(t *testing.T) {
	args := []string{"run", "--ticks", "8", "--seed", "21", "--contract", "--json", "--log-level", "error"}
	a, err := execute(t, args...)
	if err != nil {
		t.Fatal(err)
	}
	b, err := execute(t, args...)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same seed produced different output:\n%s\n%s", a, b)
	}
}

func TestRunText(t *testing.T) {
	out, err := execute(t, "run", "--ticks", "3", "--seed", "1", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Seed:", "Ticks:", "Final rate:", "Series range:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRejectsBadModel(t *testing.T) {
	_, err := execute(t, "run", "--agents", "500", "--log-level", "error")
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !strings.Contains(err.Error(), "capacity") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRunPersistsAndRunsLists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", "--ticks", "10", "--seed", "4", "--db", dbPath,
		"--snapshot-every", "5", "--json", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var s runSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatal(err)
	}
	if s.RunID == "" {
		t.Fatal("expected a run id")
	}

	db, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	run, err := db.GetRun(s.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Ticks != 10 || run.Params.Seed != 4 {
		t.Errorf("unexpected stored run %+v", run)
	}
	series, err := db.LoadSeries(s.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 10 {
		t.Errorf("expected 10 stored values, got %d", len(series))
	}
	ticks, err := db.SnapshotTicks(s.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 2 || ticks[0] != 5 || ticks[1] != 10 {
		t.Errorf("expected snapshots at 5 and 10, got %v", ticks)
	}
	db.Close()

	out, err = execute(t, "runs", "--db", dbPath, "--json", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var listed struct {
		Runs       []persistence.Run `json:"runs"`
		TotalCount int               `json:"total_count"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatal(err)
	}
	if listed.TotalCount != 1 || listed.Runs[0].ID != s.RunID {
		t.Errorf("unexpected listing %+v", listed)
	}

	out, err = execute(t, "runs", "show", s.RunID, "--db", dbPath, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, s.RunID) || !strings.Contains(out, "[5 10]") {
		t.Errorf("unexpected show output:\n%s", out)
	}
}

func TestRunsNeedsDatabase(t *testing.T) {
	if _, err := execute(t, "runs", "--log-level", "error"); err == nil {
		t.Fatal("expected error without a database")
	}
}

func TestCurve(t *testing.T) {
	out, err := execute(t, "curve", "--points", "5", "--json", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Points []struct {
			Span        float64 `json:"span"`
			Probability float64 `json:"probability"`
		} `json:"points"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Points) != 5 || body.Points[0].Span != 0 || body.Points[4].Span != 10 {
		t.Errorf("unexpected points %+v", body.Points)
	}

	if _, err := execute(t, "curve", "--from", "3", "--to", "1"); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestSchemaToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "schema.json")
	if _, err := execute(t, "schema", "--out", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Fatal("schema file is not valid JSON")
	}
}

func TestConfigFileAndFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segsim.yaml")
	content := "model:\n  agents: 20\n  width: 6\n  height: 6\n  seed: 3\nlogging:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "--config", path, "--ticks", "2", "--seed", "8", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var s runSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatal(err)
	}
	if s.Seed != 8 {
		t.Errorf("flag should override file seed, got %d", s.Seed)
	}
}

func TestRecorderNilSafe(t *testing.T) {
	var rec *recorder
	sim, err := engine.New(engine.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if id, err := rec.begin(sim); id != "" || err != nil {
		t.Errorf("nil recorder begin = %q, %v", id, err)
	}
	if err := rec.flush(sim); err != nil {
		t.Error(err)
	}
	if err := rec.tick(sim, 5); err != nil {
		t.Error(err)
	}
	if err := rec.finish(sim); err != nil {
		t.Error(err)
	}
	if newRecorder(nil, 3) != nil {
		t.Error("recorder without a database should be nil")
	}
}

func TestRecorderFlushesIncrementally(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "rec.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	p := engine.DefaultParams()
	p.Seed = 2
	sim, err := engine.New(p)
	if err != nil {
		t.Fatal(err)
	}
	rec := newRecorder(db, 0)
	id, err := rec.begin(sim)
	if err != nil {
		t.Fatal(err)
	}

	sim.Run(3)
	if err := rec.flush(sim); err != nil {
		t.Fatal(err)
	}
	sim.Run(2)
	if err := rec.finish(sim); err != nil {
		t.Fatal(err)
	}

	series, err := db.LoadSeries(id)
	if err != nil {
		t.Fatal(err)
	}
	want := sim.Series()
	if len(series) != len(want) {
		t.Fatalf("stored %d values, want %d", len(series), len(want))
	}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("value %d: %v vs %v", i, series[i], want[i])
		}
	}
	ticks, _ := db.SnapshotTicks(id)
	if len(ticks) != 1 || ticks[0] != 5 {
		t.Errorf("expected only the final snapshot, got %v", ticks)
	}
}
