// Population spawning: kind split and initial contract spans.
package agents

import "math"

// DefaultMaxInitialSpan bounds the initial contract span drawn in contract
// mode: spans are uniform integers in [0, DefaultMaxInitialSpan).
const DefaultMaxInitialSpan = 10

// Rand is the subset of a random source spawning needs.
type Rand interface {
	Intn(n int) int
}

// SpawnConfig controls initial population generation.
type SpawnConfig struct {
	Count          int
	TypeRatio      float64 // fraction of the population that is KindA
	Traits         Traits
	MaxInitialSpan int // 0 means DefaultMaxInitialSpan
}

// Spawner creates residents with sequential ids starting at 0.
type Spawner struct {
	rng    Rand
	nextID AgentID
}

// NewSpawner creates a spawner drawing from rng.
func NewSpawner(rng Rand) *Spawner {
	return &Spawner{rng: rng}
}

// SplitPoint returns floor(count * ratio): residents with a lower index are KindA.
func SplitPoint(count int, ratio float64) int {
	split := int(math.Floor(float64(count) * ratio))
	if split < 0 {
		return 0
	}
	if split > count {
		return count
	}
	return split
}

// SpawnPopulation creates cfg.Count residents. They are not placed.
func (s *Spawner) SpawnPopulation(cfg SpawnConfig) []*Resident {
	split := SplitPoint(cfg.Count, cfg.TypeRatio)
	maxSpan := cfg.MaxInitialSpan
	if maxSpan <= 0 {
		maxSpan = DefaultMaxInitialSpan
	}

	residents := make([]*Resident, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		kind := KindB
		if i < split {
			kind = KindA
		}

		span := 0
		if cfg.Traits.ContractMode {
			span = s.rng.Intn(maxSpan)
		}

		residents = append(residents, NewResident(s.nextID, kind, cfg.Traits, span))
		s.nextID++
	}
	return residents
}
