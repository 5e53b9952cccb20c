// Package stepplan expands a (start, end, factor) geometric ramp
// specification into the concrete, monotonically increasing sequence of
// concurrency (or rate) values the step controller escalates through.
package stepplan

import (
	"fmt"
	"math"
)

// Plan is the (start, end, factor) input to step expansion.
type Plan struct {
	Start  int
	End    int
	Factor float64
}

// Validate checks the plan's invariants: start≥1, end≥start, factor>1.
func (p Plan) Validate() error {
	if p.Start < 1 {
		return fmt.Errorf("stepplan: start must be >= 1, got %d", p.Start)
	}
	if p.End < p.Start {
		return fmt.Errorf("stepplan: end (%d) must be >= start (%d)", p.End, p.Start)
	}
	if p.Factor <= 1 {
		return fmt.Errorf("stepplan: factor must be > 1, got %g", p.Factor)
	}
	return nil
}

// Expand builds the finite monotonically increasing sequence:
// next = max(ceil(current*factor), current+1), terminating at or past
// end. The returned slice always starts at Start and ends at a value
// >= End (the last element may exceed End when the geometric step
// overshoots it).
func Expand(p Plan) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	steps := []int{p.Start}
	current := p.Start
	for current < p.End {
		next := int(math.Ceil(float64(current) * p.Factor))
		if next <= current {
			next = current + 1
		}
		current = next
		steps = append(steps, current)
	}
	return steps, nil
}
