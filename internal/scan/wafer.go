package scan

// Wafer layouts understood by WaferLocations.
const (
	LayoutCircle = "circle"
	LayoutHiTp   = "hitp"
	LayoutSquare = "square"
)

// HiTp plate geometry: a 15x15 grid at 4.5 mm spacing clipped to a 31.5 mm
// radius, giving 149 sample spots.
const (
	HiTpHalfWidth = 31.5
	HiTpSpacing   = 4.5
	HiTpSamples   = 149
)

// XY is a position on the sample plate.
type XY struct {
	X, Y float64
}

// WaferLocations returns sample positions for a plate layout, row by row
// (y outer, x inner).
//
// circle: the integer grid on [-radius, radius]² clipped to the disc.
// hitp: the fixed HiTp grid; radius is ignored.
// Any other shape: the full integer grid on [-radius, radius]².
func WaferLocations(shape string, radius int) []XY {
	switch shape {
	case LayoutHiTp:
		n := int(2*HiTpHalfWidth/HiTpSpacing) + 1
		return grid2D(n, -HiTpHalfWidth, HiTpSpacing, HiTpHalfWidth)
	case LayoutCircle:
		return grid2D(2*radius+1, float64(-radius), 1, float64(radius))
	default:
		return grid2D(2*radius+1, float64(-radius), 1, -1)
	}
}

// grid2D lays out an n x n grid from start with the given spacing, keeping
// only nodes within clip of the origin. A negative clip keeps every node.
func grid2D(n int, start, spacing, clip float64) []XY {
	if n <= 0 {
		return nil
	}
	out := make([]XY, 0, n*n)
	for iy := range n {
		y := start + float64(iy)*spacing
		for ix := range n {
			x := start + float64(ix)*spacing
			if clip >= 0 && x*x+y*y > clip*clip {
				continue
			}
			out = append(out, XY{X: x, Y: y})
		}
	}
	return out
}
