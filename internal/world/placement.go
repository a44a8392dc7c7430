// Random placement of agents onto empty cells.
package world

import "fmt"

// Rand is the subset of a random source placement needs.
type Rand interface {
	Intn(n int) int
	Float() float64
}

// Placement selects how initial positions are drawn.
type Placement string

const (
	// PlacementUniform draws cells uniformly at random.
	PlacementUniform Placement = "uniform"
	// PlacementClustered biases draws by a simplex noise field so that the two
	// kinds start in loosely separated regions.
	PlacementClustered Placement = "clustered"
)

// Valid reports whether p is a known placement mode. Empty means uniform.
func (p Placement) Valid() bool {
	switch p {
	case "", PlacementUniform, PlacementClustered:
		return true
	}
	return false
}

// maxWeightedAttempts bounds rejection sampling in RandomEmptyWeighted before it
// falls back to uniform sampling.
const maxWeightedAttempts = 64

// RandomEmpty draws (x, y) uniformly until it hits an empty cell.
// Returns ErrFull instead of looping when the grid has no empty cell.
func (g *Grid) RandomEmpty(rng Rand) (Coord, error) {
	if g.Occupied() >= g.Capacity() {
		return Coord{}, fmt.Errorf("random empty cell: %w", ErrFull)
	}
	for {
		c := Coord{X: rng.Intn(g.width), Y: rng.Intn(g.height)}
		if g.IsEmpty(c) {
			return c, nil
		}
	}
}

// RandomEmptyWeighted draws an empty cell, accepting each candidate with
// probability weight(c) (clamped to [0,1]). After a bounded number of
// rejections it falls back to RandomEmpty.
func (g *Grid) RandomEmptyWeighted(rng Rand, weight func(Coord) float64) (Coord, error) {
	if g.Occupied() >= g.Capacity() {
		return Coord{}, fmt.Errorf("random empty cell: %w", ErrFull)
	}
	for i := 0; i < maxWeightedAttempts; i++ {
		c := Coord{X: rng.Intn(g.width), Y: rng.Intn(g.height)}
		if !g.IsEmpty(c) {
			continue
		}
		if rng.Float() < clamp01(weight(c)) {
			return c, nil
		}
	}
	return g.RandomEmpty(rng)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
