// Random activation: every registered resident acts once per tick, in a
// freshly shuffled order.
package engine

import "github.com/talgya/segsim/internal/agents"

// Permuter draws uniform random permutations.
type Permuter interface {
	Perm(n int) []int
}

// TickStats summarizes the activations of one tick.
type TickStats struct {
	Activated int `json:"activated"`
	Gated     int `json:"gated"`
	Isolated  int `json:"isolated"`
	Attempted int `json:"attempted"`
	Moved     int `json:"moved"`
}

// RandomActivation holds the registered residents in registration order.
type RandomActivation struct {
	residents []*agents.Resident
}

// NewRandomActivation creates an empty scheduler.
func NewRandomActivation() *RandomActivation {
	return &RandomActivation{}
}

// Add registers a resident.
func (ra *RandomActivation) Add(r *agents.Resident) {
	ra.residents = append(ra.residents, r)
}

// Len returns the number of registered residents.
func (ra *RandomActivation) Len() int {
	return len(ra.residents)
}

// Agents returns the registered residents in registration order.
func (ra *RandomActivation) Agents() []*agents.Resident {
	return ra.residents
}

// Step activates every resident exactly once, in the order of a fresh
// permutation. Moves are visible to residents activated later in the tick.
func (ra *RandomActivation) Step(env agents.Environment, rng Permuter) TickStats {
	var stats TickStats
	for _, i := range rng.Perm(len(ra.residents)) {
		out := ra.residents[i].Step(env)
		stats.Activated++
		switch {
		case out.Gated:
			stats.Gated++
		case out.Isolated:
			stats.Isolated++
		}
		if out.Attempted {
			stats.Attempted++
		}
		if out.Moved {
			stats.Moved++
		}
	}
	return stats
}
