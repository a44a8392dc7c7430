// Per-tick resident behavior: contract gate, satisfaction check, relocation
// search and contract bookkeeping.
package agents

import (
	"log/slog"

	"github.com/talgya/segsim/internal/world"
)

// SatisfactionRadius is the Moore radius used to judge the neighborhood,
// independent of the moving range.
const SatisfactionRadius = 1

// Environment is what a resident can see and do in the world it lives in.
type Environment interface {
	// Neighbors returns residents within radius of c (center excluded).
	Neighbors(c world.Coord, radius int) []*Resident
	// Neighborhood returns candidate cells within radius of c in scan order.
	Neighborhood(c world.Coord, radius int) []world.Coord
	IsEmpty(c world.Coord) bool
	// MoveAgent relocates r to an empty cell and updates r.Position.
	MoveAgent(r *Resident, to world.Coord) error
	// Float draws a uniform value in [0, 1) from the shared random source.
	Float() float64
}

// Outcome records what happened during one activation.
type Outcome struct {
	Gated     bool    // contract check failed, nothing else evaluated
	Ratio     float64 // same-kind fraction among radius-1 neighbors
	Isolated  bool    // no neighbors at all
	Attempted bool    // dissatisfied, searched for a cell
	Moved     bool
	From      world.Coord
	To        world.Coord
}

// Step runs one activation.
func (r *Resident) Step(env Environment) Outcome {
	out := Outcome{From: r.Position, To: r.Position}

	if !r.CheckContract(env) {
		out.Gated = true
		r.updateContract()
		return out
	}

	ratio, total := r.Satisfaction(env)
	out.Ratio = ratio
	out.Isolated = total == 0

	if r.wantsToMove(ratio, total) {
		out.Attempted = true
		if to, ok := r.Relocate(env); ok {
			out.Moved = true
			out.To = to
		}
	}

	if out.Moved {
		r.resetContract()
	} else {
		r.updateContract()
	}
	return out
}

// CheckContract draws u in [0,100) and passes when u <= MobilityRate.
// Always passes when contract mode is off.
func (r *Resident) CheckContract(env Environment) bool {
	if !r.contractMode {
		return true
	}
	return env.Float()*100 <= r.MobilityRate
}

// Satisfaction returns the same-kind fraction among radius-1 neighbors and the
// neighbor count. The fraction is 0 when there are no neighbors; callers must
// check the count.
func (r *Resident) Satisfaction(env Environment) (float64, int) {
	return SameKindFraction(r.Kind, env.Neighbors(r.Position, SatisfactionRadius))
}

// wantsToMove is true when the fraction is strictly below the threshold.
// An isolated resident never moves.
func (r *Resident) wantsToMove(ratio float64, total int) bool {
	if total == 0 {
		return false
	}
	return ratio < r.Threshold
}

// Relocate moves to the first empty cell within MovingRange, scanning in the
// grid's fixed order. Returns false when no cell is free.
func (r *Resident) Relocate(env Environment) (world.Coord, bool) {
	for _, c := range env.Neighborhood(r.Position, r.MovingRange) {
		if !env.IsEmpty(c) {
			continue
		}
		if err := env.MoveAgent(r, c); err != nil {
			slog.Warn("relocation rejected", "agent", r.ID, "to", c, "error", err)
			continue
		}
		return c, true
	}
	return r.Position, false
}

// SameKindFraction returns the fraction of neighbors sharing kind, and the
// neighbor count. Zero neighbors yields (0, 0).
func SameKindFraction(kind Kind, neighbors []*Resident) (float64, int) {
	if len(neighbors) == 0 {
		return 0, 0
	}
	same := 0
	for _, n := range neighbors {
		if n.Kind == kind {
			same++
		}
	}
	return float64(same) / float64(len(neighbors)), len(neighbors)
}

func (r *Resident) resetContract() {
	if !r.contractMode {
		return
	}
	r.ContractSpan = 0
	r.MobilityRate = r.curve.Probability(0)
}

func (r *Resident) updateContract() {
	if !r.contractMode {
		return
	}
	r.ContractSpan++
	r.MobilityRate = r.curve.Probability(float64(r.ContractSpan))
}
