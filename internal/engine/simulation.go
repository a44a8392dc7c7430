// Simulation owns the grid, the residents, the scheduler and the random
// source, and advances them one tick at a time.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/segsim/internal/agents"
	"github.com/talgya/segsim/internal/entropy"
	"github.com/talgya/segsim/internal/world"
)

// Simulation is the segregation model. The mutex covers the grid and the full
// resident set; a tick holds it for its whole duration.
type Simulation struct {
	mu sync.RWMutex

	params    Params
	rng       *entropy.Source
	grid      *world.Grid
	schedule  *RandomActivation
	index     map[agents.AgentID]*agents.Resident
	collector *Collector
	env       *env

	tick    uint64
	running bool
	stats   TickStats
}

// Snapshot is the renderable state after a tick.
type Snapshot struct {
	Tick   uint64      `json:"tick"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Agents []AgentView `json:"agents"`
}

// AgentView is one resident as seen by a renderer.
type AgentView struct {
	ID    agents.AgentID `json:"id"`
	X     int            `json:"x"`
	Y     int            `json:"y"`
	Kind  string         `json:"kind"`
	Color string         `json:"color"`
}

// New validates p, spawns the population and places it on the grid.
func New(p Params) (*Simulation, error) {
	s := &Simulation{}
	if err := s.build(p); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset rebuilds the model from p in place, clearing the tick counter and the
// series. On a configuration error the model halts (Running reports false).
func (s *Simulation) Reset(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.build(p); err != nil {
		s.running = false
		return err
	}
	return nil
}

func (s *Simulation) build(p Params) error {
	if p.Placement == "" {
		p.Placement = world.PlacementUniform
	}
	if err := p.Validate(); err != nil {
		return err
	}

	rng := entropy.New(p.Seed)
	grid, err := world.NewGrid(p.Width, p.Height, true)
	if err != nil {
		return &ConfigError{Field: "grid", Reason: err.Error()}
	}

	spawner := agents.NewSpawner(rng)
	residents := spawner.SpawnPopulation(agents.SpawnConfig{
		Count:     p.AgentCount,
		TypeRatio: p.TypeRatio,
		Traits: agents.Traits{
			Threshold:    p.SatisfactionThreshold,
			MovingRange:  p.MovingRange,
			ContractMode: p.ContractMode,
			Curve:        p.Mobility,
		},
	})

	var field *world.NoiseField
	if p.Placement == world.PlacementClustered {
		field = world.NewNoiseField(p.Width, p.Height, world.DefaultFieldConfig(rng.Seed()))
	}

	schedule := NewRandomActivation()
	index := make(map[agents.AgentID]*agents.Resident, len(residents))
	for _, r := range residents {
		c, err := placementCell(grid, rng, field, r.Kind)
		if err != nil {
			return fmt.Errorf("place resident %d: %w", r.ID, err)
		}
		if err := grid.Place(int(r.ID), c); err != nil {
			return fmt.Errorf("place resident %d: %w", r.ID, err)
		}
		r.Position = c
		schedule.Add(r)
		index[r.ID] = r
	}

	s.params = p
	s.rng = rng
	s.grid = grid
	s.schedule = schedule
	s.index = index
	s.collector = &Collector{}
	s.env = &env{grid: grid, index: index, rng: rng}
	s.tick = 0
	s.stats = TickStats{}
	s.running = true

	slog.Info("simulation initialized",
		"agents", p.AgentCount,
		"grid", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"kind_a", agents.SplitPoint(p.AgentCount, p.TypeRatio),
		"contract", p.ContractMode,
		"placement", p.Placement,
		"seed", rng.Seed(),
	)
	return nil
}

func placementCell(grid *world.Grid, rng *entropy.Source, field *world.NoiseField, kind agents.Kind) (world.Coord, error) {
	if field == nil {
		return grid.RandomEmpty(rng)
	}
	if kind == agents.KindA {
		return grid.RandomEmptyWeighted(rng, field.Value)
	}
	return grid.RandomEmptyWeighted(rng, field.Inverse)
}

// Step records the segregation rate of the current state, then activates
// every resident once. The value recorded at tick N reflects the moves of
// tick N-1. A halted simulation does nothing.
func (s *Simulation) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	s.collector.Collect(SegregationRate(s.schedule.Agents(), s.env))
	s.stats = s.schedule.Step(s.env, s.rng)
	s.tick++

	slog.Debug("tick",
		"tick", s.tick,
		"moved", s.stats.Moved,
		"attempted", s.stats.Attempted,
		"gated", s.stats.Gated,
	)
}

// Run advances n ticks.
func (s *Simulation) Run(n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Running is false only after a reset failed with a configuration error.
func (s *Simulation) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Params returns the parameters the model was built with.
func (s *Simulation) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Seed returns the effective random seed.
func (s *Simulation) Seed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rng.Seed()
}

// Stats returns the activation summary of the last tick.
func (s *Simulation) Stats() TickStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Series returns a copy of the recorded segregation rates.
func (s *Simulation) Series() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collector.Series()
}

// SegregationRate computes the rate of the current state without recording it.
func (s *Simulation) SegregationRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SegregationRate(s.schedule.Agents(), s.env)
}

// Residents returns the registered residents in id order. Callers must not
// mutate them while the simulation is stepping.
func (s *Simulation) Residents() []*agents.Resident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*agents.Resident, len(s.schedule.Agents()))
	copy(out, s.schedule.Agents())
	return out
}

// Resident looks up a resident by id.
func (s *Simulation) Resident(id agents.AgentID) (*agents.Resident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.index[id]
	return r, ok
}

// Grid returns the occupancy grid. Callers must treat it as read-only.
func (s *Simulation) Grid() *world.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid
}

// View is a consistent read of the model after a tick.
type View struct {
	Tick     uint64
	Rate     float64
	Stats    TickStats
	Snapshot Snapshot
}

// View returns tick, current rate, last-tick stats and snapshot taken under a
// single read lock, so a concurrent Step or Reset cannot interleave.
func (s *Simulation) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Tick:     s.tick,
		Rate:     SegregationRate(s.schedule.Agents(), s.env),
		Stats:    s.stats,
		Snapshot: s.snapshot(),
	}
}

// Snapshot returns the current positions of all residents, sorted by id.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *Simulation) snapshot() Snapshot {
	views := make([]AgentView, 0, len(s.index))
	for _, r := range s.schedule.Agents() {
		views = append(views, AgentView{
			ID:    r.ID,
			X:     r.Position.X,
			Y:     r.Position.Y,
			Kind:  r.Kind.String(),
			Color: r.Color(),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	return Snapshot{
		Tick:   s.tick,
		Width:  s.params.Width,
		Height: s.params.Height,
		Agents: views,
	}
}

// env adapts the simulation state to agents.Environment. It is only used while
// the simulation mutex is held.
type env struct {
	grid  *world.Grid
	index map[agents.AgentID]*agents.Resident
	rng   *entropy.Source
}

func (e *env) Neighbors(c world.Coord, radius int) []*agents.Resident {
	ids := e.grid.Neighbors(c, radius, false)
	out := make([]*agents.Resident, 0, len(ids))
	for _, id := range ids {
		if r, ok := e.index[agents.AgentID(id)]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (e *env) Neighborhood(c world.Coord, radius int) []world.Coord {
	return e.grid.Neighborhood(c, radius, false)
}

func (e *env) IsEmpty(c world.Coord) bool {
	return e.grid.IsEmpty(c)
}

func (e *env) MoveAgent(r *agents.Resident, to world.Coord) error {
	if err := e.grid.Move(int(r.ID), to); err != nil {
		return err
	}
	r.Position, _ = e.grid.Position(int(r.ID))
	return nil
}

func (e *env) Float() float64 {
	return e.rng.Float()
}
