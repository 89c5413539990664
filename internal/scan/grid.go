package scan

import (
	"fmt"
	"math"
)

// gridEpsilon absorbs floating-point error when counting grid nodes.
const gridEpsilon = 1e-9

// MaxPoints caps the nodes on one axis and in one mesh.
const MaxPoints = 1_000_000

// Axis is an inclusive evenly spaced range of one motor's positions.
type Axis struct {
	Name  string
	Start float64
	Stop  float64
	Step  float64
}

// Validate checks that the axis describes at least one and at most
// MaxPoints nodes.
func (a Axis) Validate() error {
	if a.Step <= 0 || math.IsNaN(a.Step) || math.IsInf(a.Step, 0) {
		return fmt.Errorf("%w: axis %s step %v", ErrInvalidGrid, a.Name, a.Step)
	}
	if !isFinite(a.Start) || !isFinite(a.Stop) {
		return fmt.Errorf("%w: axis %s bounds [%v, %v]", ErrInvalidGrid, a.Name, a.Start, a.Stop)
	}
	if a.Stop < a.Start {
		return fmt.Errorf("%w: axis %s stop %v below start %v", ErrInvalidGrid, a.Name, a.Stop, a.Start)
	}
	if n := (a.Stop-a.Start)/a.Step + 1; n > MaxPoints {
		return fmt.Errorf("%w: axis %s has %.3g nodes, limit %d", ErrInvalidGrid, a.Name, n, MaxPoints)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Len returns the number of nodes on the axis.
func (a Axis) Len() int {
	return int(math.Floor((a.Stop-a.Start)/a.Step+gridEpsilon)) + 1
}

// Values returns the node positions from Start towards Stop.
func (a Axis) Values() []float64 {
	n := a.Len()
	out := make([]float64, n)
	for i := range out {
		out[i] = a.Start + float64(i)*a.Step
	}
	return out
}

// PinAxis snaps the bounds of a inward onto the lattice through pin with
// spacing a.Step, so that pin is a node and no node leaves [Start, Stop]:
//
//	start' = pin - step*floor((pin-start)/step)
//	stop'  = pin + step*floor((stop-pin)/step)
func PinAxis(a Axis, pin float64) (Axis, error) {
	if err := a.Validate(); err != nil {
		return Axis{}, err
	}
	if pin < a.Start || pin > a.Stop {
		return Axis{}, fmt.Errorf("%w: %v not in [%v, %v] on %s", ErrPinOutOfRange, pin, a.Start, a.Stop, a.Name)
	}

	below := math.Floor((pin-a.Start)/a.Step + gridEpsilon)
	above := math.Floor((a.Stop-pin)/a.Step + gridEpsilon)
	return Axis{
		Name:  a.Name,
		Start: pin - a.Step*below,
		Stop:  pin + a.Step*above,
		Step:  a.Step,
	}, nil
}

// Mesh returns the cartesian product of the axes. The first axis varies
// slowest.
func Mesh(axes ...Axis) ([]Point, error) {
	if len(axes) == 0 {
		return nil, nil
	}

	total := 1
	for _, a := range axes {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		total *= a.Len()
		if total > MaxPoints {
			return nil, fmt.Errorf("%w: mesh exceeds %d points", ErrInvalidGrid, MaxPoints)
		}
	}

	values := make([][]float64, len(axes))
	for i, a := range axes {
		values[i] = a.Values()
	}

	points := make([]Point, 0, total)
	idx := make([]int, len(axes))
	for range total {
		p := make(Point, len(axes))
		for i, a := range axes {
			p[a.Name] = values[i][idx[i]]
		}
		points = append(points, p)

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(values[i]) {
				break
			}
			idx[i] = 0
		}
	}
	return points, nil
}

// PinnedMesh pins every axis named in pin, then builds the mesh.
func PinnedMesh(pin Point, axes ...Axis) ([]Point, error) {
	pinned := make([]Axis, len(axes))
	for i, a := range axes {
		p, ok := pin[a.Name]
		if !ok {
			pinned[i] = a
			continue
		}
		var err error
		if pinned[i], err = PinAxis(a, p); err != nil {
			return nil, err
		}
	}
	return Mesh(pinned...)
}

// CircleMesh is a square two-axis mesh around Center, clipped to a circle of
// Radius.
type CircleMesh struct {
	XAxis  string
	YAxis  string
	Center XY
	Radius float64
	Step   float64

	// Pin, when set, is made a node on both axes.
	Pin *float64
}

// Build returns the unclipped mesh, first axis slowest, and the circle
// filter that clips it.
func (m CircleMesh) Build() ([]Point, Filter, error) {
	if m.Radius < 0 {
		return nil, nil, fmt.Errorf("%w: negative radius %v", ErrInvalidGrid, m.Radius)
	}
	axes := []Axis{
		{Name: m.XAxis, Start: m.Center.X - m.Radius, Stop: m.Center.X + m.Radius, Step: m.Step},
		{Name: m.YAxis, Start: m.Center.Y - m.Radius, Stop: m.Center.Y + m.Radius, Step: m.Step},
	}

	var (
		points []Point
		err    error
	)
	if m.Pin != nil {
		points, err = PinnedMesh(Point{m.XAxis: *m.Pin, m.YAxis: *m.Pin}, axes...)
	} else {
		points, err = Mesh(axes...)
	}
	if err != nil {
		return nil, nil, err
	}

	filter := CircleFromCenter{
		Center: Point{m.XAxis: m.Center.X, m.YAxis: m.Center.Y},
		Radius: m.Radius,
	}
	return points, filter, nil
}
