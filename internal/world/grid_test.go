package world

import (
	"errors"
	"testing"
)

type seqRand struct {
	ints   []int
	floats []float64
}

func (r *seqRand) Intn(n int) int {
	v := r.ints[0] % n
	r.ints = append(r.ints[1:], r.ints[0])
	return v
}

func (r *seqRand) Float() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func mustGrid(t *testing.T, w, h int, torus bool) *Grid {
	t.Helper()
	g, err := NewGrid(w, h, torus)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestNewGridRejectsBadDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 3}, {3, 0}, {-1, 2}} {
		if _, err := NewGrid(dims[0], dims[1], true); err == nil {
			t.Fatalf("expected error for %v", dims)
		}
	}
}

func TestPlaceMoveRemove(t *testing.T) {
	g := mustGrid(t, 4, 4, true)

	if err := g.Place(1, Coord{0, 0}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := g.Place(2, Coord{0, 0}); !errors.Is(err, ErrOccupied) {
		t.Fatalf("expected ErrOccupied, got %v", err)
	}
	if err := g.Place(1, Coord{1, 1}); !errors.Is(err, ErrAlreadyPlaced) {
		t.Fatalf("expected ErrAlreadyPlaced, got %v", err)
	}
	if err := g.Place(2, Coord{5, 5}); err != nil {
		t.Fatalf("place wrapped: %v", err)
	}
	if c, _ := g.Position(2); c != (Coord{1, 1}) {
		t.Fatalf("expected wrapped position (1,1), got %s", c)
	}

	if err := g.Move(1, Coord{1, 1}); !errors.Is(err, ErrOccupied) {
		t.Fatalf("expected ErrOccupied on move, got %v", err)
	}
	if err := g.Move(1, Coord{3, 2}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !g.IsEmpty(Coord{0, 0}) {
		t.Fatal("old cell should be vacated")
	}
	if id, ok := g.At(Coord{3, 2}); !ok || id != 1 {
		t.Fatalf("expected agent 1 at (3,2), got %d %v", id, ok)
	}
	if err := g.Move(9, Coord{0, 0}); !errors.Is(err, ErrNotPlaced) {
		t.Fatalf("expected ErrNotPlaced, got %v", err)
	}

	if err := g.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if g.Occupied() != 1 {
		t.Fatalf("expected 1 occupied, got %d", g.Occupied())
	}
}

func TestBoundedGridRejectsOutOfBounds(t *testing.T) {
	g := mustGrid(t, 3, 3, false)
	if err := g.Place(1, Coord{3, 0}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if g.IsEmpty(Coord{-1, 0}) {
		t.Fatal("off-grid cell must not report empty")
	}
	if n := len(g.Neighborhood(Coord{0, 0}, 1, false)); n != 3 {
		t.Fatalf("corner of bounded grid should have 3 neighbors, got %d", n)
	}
}

func TestNeighborhoodWrapsAndOrders(t *testing.T) {
	g := mustGrid(t, 5, 5, true)
	cells := g.Neighborhood(Coord{0, 0}, 1, false)
	want := []Coord{
		{4, 4}, {0, 4}, {1, 4},
		{4, 0}, {1, 0},
		{4, 1}, {0, 1}, {1, 1},
	}
	if len(cells) != len(want) {
		t.Fatalf("expected %d cells, got %d: %v", len(want), len(cells), cells)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Fatalf("cell %d: expected %s, got %s", i, want[i], cells[i])
		}
	}

	withCenter := g.Neighborhood(Coord{2, 2}, 1, true)
	if len(withCenter) != 9 || withCenter[4] != (Coord{2, 2}) {
		t.Fatalf("expected center in the middle of 9 cells, got %v", withCenter)
	}
}

func TestNeighborhoodDeduplicatesOnSmallTorus(t *testing.T) {
	g := mustGrid(t, 3, 3, true)
	cells := g.Neighborhood(Coord{1, 1}, 2, false)
	if len(cells) != 8 {
		t.Fatalf("radius 2 on 3x3 torus should reach the 8 other cells once, got %d: %v", len(cells), cells)
	}
	for _, c := range cells {
		if c == (Coord{1, 1}) {
			t.Fatal("center must be excluded even when reached by wrapping")
		}
	}

	tiny := mustGrid(t, 1, 1, true)
	if n := len(tiny.Neighborhood(Coord{0, 0}, 1, false)); n != 0 {
		t.Fatalf("1x1 torus has no neighbors, got %d", n)
	}
}

func TestNeighborsReturnsOccupants(t *testing.T) {
	g := mustGrid(t, 3, 3, true)
	_ = g.Place(1, Coord{0, 0})
	_ = g.Place(2, Coord{1, 1})

	ids := g.Neighbors(Coord{0, 0}, 1, false)
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected [2], got %v", ids)
	}
	if ids := g.Neighbors(Coord{0, 0}, 1, true); len(ids) != 2 {
		t.Fatalf("expected 2 ids with center, got %v", ids)
	}
}

func TestRandomEmpty(t *testing.T) {
	g := mustGrid(t, 2, 1, true)
	_ = g.Place(1, Coord{0, 0})

	rng := &seqRand{ints: []int{0, 0, 1, 0}}
	c, err := g.RandomEmpty(rng)
	if err != nil {
		t.Fatalf("RandomEmpty: %v", err)
	}
	if c != (Coord{1, 0}) {
		t.Fatalf("expected (1,0), got %s", c)
	}

	_ = g.Place(2, c)
	if _, err := g.RandomEmpty(rng); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestRandomEmptyWeightedFallsBack(t *testing.T) {
	g := mustGrid(t, 3, 3, true)
	rng := &seqRand{ints: []int{2, 1}, floats: nil}
	c, err := g.RandomEmptyWeighted(rng, func(Coord) float64 { return 0 })
	if err != nil {
		t.Fatalf("RandomEmptyWeighted: %v", err)
	}
	if !g.IsEmpty(c) {
		t.Fatalf("expected an empty cell, got %s", c)
	}
}

func TestNoiseFieldRange(t *testing.T) {
	f := NewNoiseField(12, 8, DefaultFieldConfig(42))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			v := f.Value(Coord{x, y})
			if v < 0 || v > 1 {
				t.Fatalf("field value out of range at (%d,%d): %v", x, y, v)
			}
			if inv := f.Inverse(Coord{x, y}); inv != 1-v {
				t.Fatalf("inverse mismatch at (%d,%d)", x, y)
			}
		}
	}
	if f.Value(Coord{-1, 0}) != f.Value(Coord{11, 0}) {
		t.Fatal("field should wrap")
	}

	g := NewNoiseField(12, 8, DefaultFieldConfig(42))
	if f.Value(Coord{3, 3}) != g.Value(Coord{3, 3}) {
		t.Fatal("same seed must give the same field")
	}
}

func TestChebyshev(t *testing.T) {
	if d := Chebyshev(Coord{0, 0}, Coord{3, -5}); d != 5 {
		t.Fatalf("expected 5, got %d", d)
	}
}
