package observer

import "math"

// Phase labels returned by Triage.
const (
	PhaseHalted   = "HALTED"
	PhaseSettled  = "SETTLED"
	PhaseSorting  = "SORTING"
	PhaseChurning = "CHURNING"
	PhaseWarmup   = "WARMUP"
)

// settleBand is the rate spread (in percentage points) under which the
// recent window counts as flat.
const settleBand = 0.5

// Health holds derived signals computed from an Observation.
type Health struct {
	Rate      float64 `json:"rate"`
	Trend     float64 `json:"trend"`  // last minus first sample of the window
	Spread    float64 `json:"spread"` // max minus min over the window
	MoveShare float64 `json:"move_share"`
	Phase     string  `json:"phase"`
}

// Triage classifies an observation. A run with no moves and a flat
// window is settled; a rising window is sorting; anything else with
// movement is churning.
func Triage(obs *Observation) *Health {
	h := &Health{Rate: obs.Status.Rate}
	if obs.Status.Agents > 0 {
		h.MoveShare = float64(obs.Status.Stats.Moved) / float64(obs.Status.Agents)
	}

	if len(obs.Recent) > 0 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range obs.Recent {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		h.Spread = hi - lo
		h.Trend = obs.Recent[len(obs.Recent)-1] - obs.Recent[0]
	}

	switch {
	case !obs.Status.Running:
		h.Phase = PhaseHalted
	case len(obs.Recent) < 2:
		h.Phase = PhaseWarmup
	case obs.Status.Stats.Moved == 0 && h.Spread <= settleBand:
		h.Phase = PhaseSettled
	case h.Trend > settleBand:
		h.Phase = PhaseSorting
	default:
		h.Phase = PhaseChurning
	}
	return h
}
