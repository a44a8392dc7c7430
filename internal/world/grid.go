package world

import (
	"errors"
	"fmt"
)

var (
	// ErrOccupied is returned when the target cell already holds an agent.
	ErrOccupied = errors.New("cell occupied")
	// ErrNotPlaced is returned when an agent is not on the grid.
	ErrNotPlaced = errors.New("agent not placed")
	// ErrAlreadyPlaced is returned when placing an agent that is already on the grid.
	ErrAlreadyPlaced = errors.New("agent already placed")
	// ErrOutOfBounds is returned for coordinates off a bounded (non-torus) grid.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrFull is returned when no empty cell remains.
	ErrFull = errors.New("grid full")
)

// Grid is a width x height occupancy map with at most one agent per cell.
// Agents are identified by int ids.
type Grid struct {
	width  int
	height int
	torus  bool

	occupants map[Coord]int // cell → agent id
	positions map[int]Coord // agent id → cell
}

// NewGrid creates an empty grid. Both dimensions must be positive.
func NewGrid(width, height int, torus bool) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", width, height)
	}
	return &Grid{
		width:     width,
		height:    height,
		torus:     torus,
		occupants: make(map[Coord]int),
		positions: make(map[int]Coord),
	}, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Torus reports whether edges wrap.
func (g *Grid) Torus() bool { return g.torus }

// Capacity returns the number of cells.
func (g *Grid) Capacity() int { return g.width * g.height }

// Occupied returns the number of occupied cells.
func (g *Grid) Occupied() int { return len(g.occupants) }

// Resolve maps c onto the grid: wrapped on a torus, bounds-checked otherwise.
func (g *Grid) Resolve(c Coord) (Coord, bool) {
	if g.torus {
		return Coord{X: mod(c.X, g.width), Y: mod(c.Y, g.height)}, true
	}
	if c.X < 0 || c.X >= g.width || c.Y < 0 || c.Y >= g.height {
		return c, false
	}
	return c, true
}

// IsEmpty returns true if no agent occupies c. Off-grid cells are never empty.
func (g *Grid) IsEmpty(c Coord) bool {
	c, ok := g.Resolve(c)
	if !ok {
		return false
	}
	_, taken := g.occupants[c]
	return !taken
}

// At returns the agent occupying c, if any.
func (g *Grid) At(c Coord) (int, bool) {
	c, ok := g.Resolve(c)
	if !ok {
		return 0, false
	}
	id, taken := g.occupants[c]
	return id, taken
}

// Position returns the cell an agent occupies.
func (g *Grid) Position(id int) (Coord, bool) {
	c, ok := g.positions[id]
	return c, ok
}

// Place puts an agent on an empty cell.
func (g *Grid) Place(id int, c Coord) error {
	c, ok := g.Resolve(c)
	if !ok {
		return fmt.Errorf("place agent %d at %s: %w", id, c, ErrOutOfBounds)
	}
	if _, placed := g.positions[id]; placed {
		return fmt.Errorf("place agent %d: %w", id, ErrAlreadyPlaced)
	}
	if other, taken := g.occupants[c]; taken {
		return fmt.Errorf("place agent %d at %s (held by %d): %w", id, c, other, ErrOccupied)
	}
	g.occupants[c] = id
	g.positions[id] = c
	return nil
}

// Move relocates a placed agent to an empty cell.
func (g *Grid) Move(id int, to Coord) error {
	from, placed := g.positions[id]
	if !placed {
		return fmt.Errorf("move agent %d: %w", id, ErrNotPlaced)
	}
	to, ok := g.Resolve(to)
	if !ok {
		return fmt.Errorf("move agent %d to %s: %w", id, to, ErrOutOfBounds)
	}
	if to == from {
		return nil
	}
	if other, taken := g.occupants[to]; taken {
		return fmt.Errorf("move agent %d to %s (held by %d): %w", id, to, other, ErrOccupied)
	}
	delete(g.occupants, from)
	g.occupants[to] = id
	g.positions[id] = to
	return nil
}

// Remove vacates the agent's cell.
func (g *Grid) Remove(id int) error {
	c, placed := g.positions[id]
	if !placed {
		return fmt.Errorf("remove agent %d: %w", id, ErrNotPlaced)
	}
	delete(g.occupants, c)
	delete(g.positions, id)
	return nil
}

// Neighborhood returns the cells within Chebyshev distance radius of c (Moore
// topology), scanned row-major: dy from -radius to +radius, dx likewise within
// each row. Cells reached twice through wrapping are listed once, and the
// center is skipped unless includeCenter is set.
func (g *Grid) Neighborhood(c Coord, radius int, includeCenter bool) []Coord {
	center, ok := g.Resolve(c)
	if !ok {
		return nil
	}
	if radius < 0 {
		radius = 0
	}

	side := 2*radius + 1
	cells := make([]Coord, 0, side*side)
	seen := make(map[Coord]bool, side*side)

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			n, ok := g.Resolve(center.Add(dx, dy))
			if !ok {
				continue
			}
			if n == center && !includeCenter {
				continue
			}
			if seen[n] {
				continue
			}
			seen[n] = true
			cells = append(cells, n)
		}
	}
	return cells
}

// Neighbors returns the ids of agents occupying the Neighborhood of c, in the
// same scan order.
func (g *Grid) Neighbors(c Coord, radius int, includeCenter bool) []int {
	var ids []int
	for _, n := range g.Neighborhood(c, radius, includeCenter) {
		if id, taken := g.occupants[n]; taken {
			ids = append(ids, id)
		}
	}
	return ids
}

// Each calls fn for every occupied cell. Iteration order is unspecified.
func (g *Grid) Each(fn func(id int, c Coord)) {
	for c, id := range g.occupants {
		fn(id, c)
	}
}

func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, torus=%t, occupied=%d)", g.width, g.height, g.torus, g.Occupied())
}
