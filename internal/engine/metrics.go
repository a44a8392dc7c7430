// Segregation rate: the aggregate homogeneity of residents' neighborhoods.
package engine

import "github.com/talgya/segsim/internal/agents"

// IsolatedRate is reported when no resident has any neighbor.
const IsolatedRate = 100.0

// SegregationRate returns 100 × the mean same-kind neighbor fraction over
// residents with at least one radius-1 neighbor. Isolated residents are
// skipped; if all are isolated the result is IsolatedRate.
func SegregationRate(residents []*agents.Resident, env agents.Environment) float64 {
	counted := 0
	sum := 0.0
	for _, r := range residents {
		ratio, total := agents.SameKindFraction(r.Kind, env.Neighbors(r.Position, agents.SatisfactionRadius))
		if total == 0 {
			continue
		}
		sum += ratio
		counted++
	}
	if counted == 0 {
		return IsolatedRate
	}
	return sum / float64(counted) * 100
}

// Collector accumulates one segregation rate per tick.
type Collector struct {
	series []float64
}

// Collect appends a value.
func (c *Collector) Collect(v float64) {
	c.series = append(c.series, v)
}

// Series returns a copy of the collected values.
func (c *Collector) Series() []float64 {
	out := make([]float64, len(c.series))
	copy(out, c.series)
	return out
}

// Len returns the number of collected values.
func (c *Collector) Len() int {
	return len(c.series)
}

// Last returns the most recent value, if any.
func (c *Collector) Last() (float64, bool) {
	if len(c.series) == 0 {
		return 0, false
	}
	return c.series[len(c.series)-1], true
}
