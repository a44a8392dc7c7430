// Simplex noise field used to bias initial placement.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// FieldConfig holds noise field parameters.
type FieldConfig struct {
	Seed        int64
	Octaves     int
	Frequency   float64
	Persistence float64
}

// DefaultFieldConfig returns parameters that give a few blobs on a small grid.
func DefaultFieldConfig(seed int64) FieldConfig {
	return FieldConfig{
		Seed:        seed,
		Octaves:     3,
		Frequency:   0.15,
		Persistence: 0.5,
	}
}

// NoiseField holds one value in [0,1] per grid cell.
type NoiseField struct {
	width  int
	height int
	values []float64
}

// NewNoiseField samples multi-octave simplex noise over a width x height grid.
func NewNoiseField(width, height int, cfg FieldConfig) *NoiseField {
	if cfg.Octaves <= 0 {
		cfg.Octaves = 1
	}
	noise := opensimplex.NewNormalized(cfg.Seed)

	f := &NoiseField{
		width:  width,
		height: height,
		values: make([]float64, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.values[y*width+x] = octaveNoise(noise, float64(x), float64(y), cfg.Octaves, cfg.Frequency, cfg.Persistence)
		}
	}
	return f
}

// Value returns the field value at c, wrapping out-of-range coordinates.
func (f *NoiseField) Value(c Coord) float64 {
	x := mod(c.X, f.width)
	y := mod(c.Y, f.height)
	return f.values[y*f.width+x]
}

// Inverse returns 1 - Value(c).
func (f *NoiseField) Inverse(c Coord) float64 {
	return 1 - f.Value(c)
}

// octaveNoise sums several noise octaves and renormalizes to [0,1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
