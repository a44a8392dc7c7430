// Package agents provides the resident data model, the per-tick relocation
// behavior and population spawning.
package agents

import (
	"fmt"

	"github.com/talgya/segsim/internal/mobility"
	"github.com/talgya/segsim/internal/world"
)

// AgentID is a unique identifier for a resident.
type AgentID int

// Kind is a resident's group. The model uses two.
type Kind uint8

const (
	KindA Kind = iota
	KindB
)

// String returns "A" or "B".
func (k Kind) String() string {
	switch k {
	case KindA:
		return "A"
	case KindB:
		return "B"
	default:
		return "?"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "A":
		return KindA, nil
	case "B":
		return KindB, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// Color is the display color for the kind. Informational only.
func (k Kind) Color() string {
	switch k {
	case KindA:
		return "black"
	case KindB:
		return "blue"
	default:
		return "gray"
	}
}

// Traits are the behavioral parameters shared by the population.
type Traits struct {
	Threshold    float64        // minimum same-kind neighbor fraction to stay put, 0.0–1.0
	MovingRange  int            // Moore radius searched for a new cell
	ContractMode bool           // gate moves on the contract-span mobility rate
	Curve        mobility.Curve // contract span → mobility rate
}

// Resident is one household on the grid.
type Resident struct {
	ID   AgentID `json:"id"`
	Kind Kind    `json:"kind"`

	Threshold   float64 `json:"threshold"`
	MovingRange int     `json:"moving_range"`

	// Contract state. MobilityRate is always Curve.Probability(ContractSpan).
	ContractSpan int     `json:"contract_span"`
	MobilityRate float64 `json:"mobility_rate"`

	// Position mirrors the grid; only the environment updates it.
	Position world.Coord `json:"position"`

	contractMode bool
	curve        mobility.Curve
}

// NewResident creates a resident with the given initial contract span.
func NewResident(id AgentID, kind Kind, traits Traits, span int) *Resident {
	if span < 0 {
		span = 0
	}
	r := &Resident{
		ID:           id,
		Kind:         kind,
		Threshold:    traits.Threshold,
		MovingRange:  traits.MovingRange,
		ContractSpan: span,
		contractMode: traits.ContractMode,
		curve:        traits.Curve,
	}
	r.MobilityRate = r.curve.Probability(float64(r.ContractSpan))
	return r
}

// Color returns the display color of the resident's kind.
func (r *Resident) Color() string {
	return r.Kind.Color()
}

// ContractMode reports whether moves are gated by the mobility rate.
func (r *Resident) ContractMode() bool {
	return r.contractMode
}
