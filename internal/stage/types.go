package stage

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Axis names of the HiTp stage.
const (
	AxisStageX = "stage_x"
	AxisStageY = "stage_y"
	AxisPlateX = "plate_x"
	AxisPlateY = "plate_y"
	AxisTheta  = "theta"
)

// AxisNames lists the stage axes in move order.
var AxisNames = []string{AxisStageX, AxisStageY, AxisPlateX, AxisPlateY, AxisTheta}

// Position maps axis names to motor positions.
type Position map[string]float64

// Clone returns a copy of p.
func (p Position) Clone() Position {
	return maps.Clone(p)
}

// CenterSelector is the selector text naming the center position.
const CenterSelector = "center"

// Selector picks positions out of a Registry: every sample, the center, or
// a list of indices. Selectors are plain values and compare with ==.
type Selector struct {
	kind    selectorKind
	indices string // comma-joined so Selector stays comparable
}

type selectorKind int

const (
	selectAll selectorKind = iota
	selectCenter
	selectIndices
)

var (
	// All selects every sample in index order. It is the zero Selector.
	All = Selector{}

	// Center selects the center position.
	Center = Selector{kind: selectCenter}
)

// Indices selects the given samples in the given order.
func Indices(idx ...int) Selector {
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}
	return Selector{kind: selectIndices, indices: strings.Join(parts, ",")}
}

// IsCenter reports whether s selects the center.
func (s Selector) IsCenter() bool { return s.kind == selectCenter }

// IsAll reports whether s selects every sample.
func (s Selector) IsAll() bool { return s.kind == selectAll }

// IndexList returns the indices of an Indices selector.
func (s Selector) IndexList() []int {
	if s.kind != selectIndices || s.indices == "" {
		return nil
	}
	parts := strings.Split(s.indices, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, _ := strconv.Atoi(p)
		out = append(out, n)
	}
	return out
}

// String renders s in the form accepted by ParseSelector.
func (s Selector) String() string {
	switch s.kind {
	case selectCenter:
		return CenterSelector
	case selectIndices:
		return s.indices
	default:
		return "all"
	}
}

// ParseSelector parses "", "all", "center" (any case) or a comma separated
// list of indices.
func ParseSelector(text string) (Selector, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "", "all":
		return All, nil
	case CenterSelector:
		return Center, nil
	}

	var idx []int
	for _, part := range strings.Split(t, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, text)
		}
		idx = append(idx, n)
	}
	return Indices(idx...), nil
}

// sortedKeys returns the sample indices in ascending order.
func sortedKeys(m map[int]Position) []int {
	return slices.Sorted(maps.Keys(m))
}
