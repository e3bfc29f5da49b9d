// Package scores holds the named feature values behind a hypothesis score and
// the weights that collapse them into one comparable total.
package scores

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Breakdown maps a feature name to its component values. Features may carry
// more than one component (the translation model carries four), and breakdowns
// compose additively: the breakdown of a derivation is the element-wise sum of
// its rule-level breakdown and the breakdowns of its sub-derivations.
type Breakdown map[string][]float64

// NewBreakdown returns an empty breakdown.
func NewBreakdown() Breakdown {
	return make(Breakdown)
}

// Add accumulates values into the named feature, element-wise. The component
// list grows as needed so partial overlaps still sum correctly.
func (b Breakdown) Add(name string, values ...float64) {
	existing := b[name]
	for len(existing) < len(values) {
		existing = append(existing, 0)
	}
	for i, v := range values {
		existing[i] += v
	}
	b[name] = existing
}

// Merge adds every feature of other into b.
func (b Breakdown) Merge(other Breakdown) {
	for name, values := range other {
		b.Add(name, values...)
	}
}

// Clone returns a deep copy of b.
func (b Breakdown) Clone() Breakdown {
	c := make(Breakdown, len(b))
	for name, values := range b {
		vc := make([]float64, len(values))
		copy(vc, values)
		c[name] = vc
	}
	return c
}

// Weighted collapses the breakdown into a single score under w.
func (b Breakdown) Weighted(w Weights) float64 {
	total := 0.0
	for name, values := range b {
		for i, v := range values {
			total += v * w.Component(name, i)
		}
	}
	return total
}

// String renders the breakdown in n-best list form: feature names followed by
// their component values, names in sorted order so output is reproducible.
//
//	tm: -1.386 -0.693 -1.386 -0.693 wp: -2
func (b Breakdown) String() string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		for _, v := range b[name] {
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
		}
	}
	return sb.String()
}

// Weights maps a feature name to per-component weights.
type Weights map[string][]float64

// Component returns the weight for component i of the named feature.
// Features without a configured weight pass through at 1.0 rather than being
// silently zeroed out.
func (w Weights) Component(name string, i int) float64 {
	values, ok := w[name]
	if !ok || i >= len(values) {
		return 1.0
	}
	return values[i]
}

// Validate reports an error for non-finite weight values, which would poison
// every score they touch.
func (w Weights) Validate() error {
	for name, values := range w {
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("weight %s[%d] is %v", name, i, v)
			}
		}
	}
	return nil
}
