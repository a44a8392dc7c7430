// Package world provides the occupancy grid residents live on: square cells,
// optional toroidal wrap, Moore neighborhoods and random placement.
package world

import "fmt"

// Coord is a cell position. X grows to the right, Y grows downward.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Add returns c offset by (dx, dy) without any wrapping.
func (c Coord) Add(dx, dy int) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// Chebyshev returns the king-move distance between a and b on an unbounded plane.
func Chebyshev(a, b Coord) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// mod returns the non-negative remainder of a / n.
func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
