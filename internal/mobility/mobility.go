// Package mobility maps a resident's contract span (ticks since its last move)
// to a relocation probability using a logistic curve.
package mobility

import "math"

// Curve holds the logistic parameters.
type Curve struct {
	Steepness float64 `json:"steepness" yaml:"steepness"` // k
	Midpoint  float64 `json:"midpoint" yaml:"midpoint"`   // x0
	Scale     float64 `json:"scale" yaml:"scale"`         // upper asymptote
}

// Default returns the unit logistic curve centred at 1.
func Default() Curve {
	return Curve{Steepness: 1, Midpoint: 1, Scale: 1}
}

// Logistic evaluates scale / (1 + e^(-steepness*scale*(span-midpoint))).
func Logistic(span, steepness, midpoint, scale float64) float64 {
	return scale / (1 + math.Exp(-steepness*scale*(span-midpoint)))
}

// Probability returns the relocation probability for the given contract span.
func (c Curve) Probability(span float64) float64 {
	return Logistic(span, c.Steepness, c.Midpoint, c.Scale)
}

// Point is one sample of the curve.
type Point struct {
	Span        float64 `json:"span"`
	Probability float64 `json:"probability"`
}

// Sample returns n evenly spaced samples over [from, to], endpoints included.
func (c Curve) Sample(from, to float64, n int) []Point {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []Point{{Span: from, Probability: c.Probability(from)}}
	}
	step := (to - from) / float64(n-1)
	points := make([]Point, n)
	for i := range points {
		x := from + float64(i)*step
		if i == n-1 {
			x = to
		}
		points[i] = Point{Span: x, Probability: c.Probability(x)}
	}
	return points
}
