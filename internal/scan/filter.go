package scan

import "maps"

// Point maps axis names to coordinates.
type Point map[string]float64

// Clone returns a copy of p.
func (p Point) Clone() Point {
	return maps.Clone(p)
}

// Filter decides whether a sweep visits a point.
type Filter interface {
	Admit(p Point) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(p Point) bool

// Admit calls f.
func (f FilterFunc) Admit(p Point) bool { return f(p) }

// CircleFromOrigin admits points whose squared coordinates sum to at most
// Radius².
type CircleFromOrigin struct {
	Radius float64
}

// Admit implements Filter.
func (c CircleFromOrigin) Admit(p Point) bool {
	var sum float64
	for _, v := range p {
		sum += v * v
	}
	return sum <= c.Radius*c.Radius
}

// CircleFromCenter admits points within Radius of Center. Axes missing from
// Center are measured from 0.
type CircleFromCenter struct {
	Center Point
	Radius float64
}

// Admit implements Filter.
func (c CircleFromCenter) Admit(p Point) bool {
	var sum float64
	for axis, v := range p {
		d := v - c.Center[axis]
		sum += d * d
	}
	return sum <= c.Radius*c.Radius
}

// Threshold rejects a point while any of the latest detector values exceeds
// Limit. Values is consulted on every Admit; a nil Values admits everything.
//
// The values are those read at the previous point, because the sweep moves
// before it triggers.
type Threshold struct {
	Limit  float64
	Values func() []float64
}

// Admit implements Filter.
func (t Threshold) Admit(Point) bool {
	if t.Values == nil {
		return true
	}
	for _, v := range t.Values() {
		if v > t.Limit {
			return false
		}
	}
	return true
}

// All admits a point only when every filter does. nil filters are skipped.
func All(filters ...Filter) Filter {
	return FilterFunc(func(p Point) bool {
		for _, f := range filters {
			if f != nil && !f.Admit(p) {
				return false
			}
		}
		return true
	})
}
