package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/segsim/internal/mobility"
	"github.com/talgya/segsim/internal/world"
)

// ErrConfiguration is the sentinel every *ConfigError unwraps to.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports an invalid model parameter. It is the only fatal error
// the simulation raises, and only at construction.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// Params are the construction-time model parameters.
type Params struct {
	AgentCount            int             `json:"agents" yaml:"agents" jsonschema:"minimum=1,description=Number of residents (at most width*height)"`
	Width                 int             `json:"width" yaml:"width" jsonschema:"minimum=1"`
	Height                int             `json:"height" yaml:"height" jsonschema:"minimum=1"`
	TypeRatio             float64         `json:"type_ratio" yaml:"type_ratio" jsonschema:"minimum=0,maximum=1,description=Fraction of residents of kind A"`
	MovingRange           int             `json:"moving_range" yaml:"moving_range" jsonschema:"minimum=1,description=Moore radius searched for a new home"`
	SatisfactionThreshold float64         `json:"satisfaction" yaml:"satisfaction" jsonschema:"minimum=0,maximum=1,description=Minimum same-kind neighbor fraction to stay"`
	ContractMode          bool            `json:"contract" yaml:"contract" jsonschema:"description=Gate moves on the contract-span mobility rate"`
	Seed                  int64           `json:"seed" yaml:"seed" jsonschema:"description=Random seed; 0 picks one at random"`
	Mobility              mobility.Curve  `json:"mobility" yaml:"mobility"`
	Placement             world.Placement `json:"placement,omitempty" yaml:"placement,omitempty" jsonschema:"enum=uniform,enum=clustered"`
}

// DefaultParams returns a 10x10 grid with 90 residents split evenly.
func DefaultParams() Params {
	return Params{
		AgentCount:            90,
		Width:                 10,
		Height:                10,
		TypeRatio:             0.5,
		MovingRange:           2,
		SatisfactionThreshold: 0.6,
		ContractMode:          false,
		Mobility:              mobility.Default(),
		Placement:             world.PlacementUniform,
	}
}

// Validate checks every constraint. The capacity check guarantees placement
// terminates.
func (p Params) Validate() error {
	switch {
	case p.Width <= 0:
		return &ConfigError{Field: "width", Reason: fmt.Sprintf("must be positive, got %d", p.Width)}
	case p.Height <= 0:
		return &ConfigError{Field: "height", Reason: fmt.Sprintf("must be positive, got %d", p.Height)}
	case p.AgentCount <= 0:
		return &ConfigError{Field: "agents", Reason: fmt.Sprintf("must be positive, got %d", p.AgentCount)}
	case p.AgentCount > p.Width*p.Height:
		return &ConfigError{Field: "agents", Reason: fmt.Sprintf("%d residents exceed grid capacity %d", p.AgentCount, p.Width*p.Height)}
	case p.TypeRatio < 0 || p.TypeRatio > 1:
		return &ConfigError{Field: "type_ratio", Reason: fmt.Sprintf("must be in [0,1], got %g", p.TypeRatio)}
	case p.MovingRange <= 0:
		return &ConfigError{Field: "moving_range", Reason: fmt.Sprintf("must be positive, got %d", p.MovingRange)}
	case p.SatisfactionThreshold < 0 || p.SatisfactionThreshold > 1:
		return &ConfigError{Field: "satisfaction", Reason: fmt.Sprintf("must be in [0,1], got %g", p.SatisfactionThreshold)}
	case p.Mobility.Steepness <= 0:
		return &ConfigError{Field: "mobility.steepness", Reason: fmt.Sprintf("must be positive, got %g", p.Mobility.Steepness)}
	case p.Mobility.Scale <= 0:
		return &ConfigError{Field: "mobility.scale", Reason: fmt.Sprintf("must be positive, got %g", p.Mobility.Scale)}
	case !p.Placement.Valid():
		return &ConfigError{Field: "placement", Reason: fmt.Sprintf("unknown mode %q (valid: uniform, clustered)", p.Placement)}
	}
	return nil
}
