package stage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ssrltools/beamcore/internal/scan"
)

// Motor is one stage axis. *motor.Axis satisfies it.
type Motor interface {
	Position(ctx context.Context) (float64, error)
	MoveTo(ctx context.Context, target float64) error
}

// Repository persists sample and center positions.
type Repository interface {
	ListSamples(ctx context.Context) (map[int]Position, error)
	SaveSample(ctx context.Context, idx int, pos Position) error
	SaveSamples(ctx context.Context, samples map[int]Position) error
	GetCenter(ctx context.Context) (Position, bool, error)
	SaveCenter(ctx context.Context, pos Position) error
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds sample positions for one stage.
//
// All public methods are thread-safe. Positions handed out are copies.
type Registry struct {
	axes   map[string]Motor
	repo   Repository
	logger Logger

	mu      sync.RWMutex
	samples map[int]Position
	center  Position
}

// NewRegistry creates a registry seeded from a wafer layout: stage_x and
// stage_y come from the layout, the plate axes and theta start at 0. The
// center starts at 0 on every axis.
func NewRegistry(axes map[string]Motor, layout string, radius int) *Registry {
	locs := scan.WaferLocations(layout, radius)
	samples := make(map[int]Position, len(locs))
	for i, xy := range locs {
		samples[i] = Position{
			AxisStageX: xy.X,
			AxisStageY: xy.Y,
			AxisPlateX: 0,
			AxisPlateY: 0,
			AxisTheta:  0,
		}
	}

	center := make(Position, len(AxisNames))
	for _, name := range AxisNames {
		center[name] = 0
	}

	return &Registry{
		axes:    axes,
		logger:  noopLogger{},
		samples: samples,
		center:  center,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRepository enables persistence. Saves made before it is set are not
// written retroactively.
func (r *Registry) SetRepository(repo Repository) {
	r.repo = repo
}

// Load overlays the persisted positions on the layout defaults.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	saved, err := r.repo.ListSamples(ctx)
	if err != nil {
		return fmt.Errorf("loading samples: %w", err)
	}
	center, ok, err := r.repo.GetCenter(ctx)
	if err != nil {
		return fmt.Errorf("loading center: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, pos := range saved {
		r.samples[idx] = pos
	}
	if ok {
		r.center = center
	}

	r.logger.Info("stage positions loaded", "saved", len(saved), "total", len(r.samples), "center", ok)
	return nil
}

// Len returns the number of samples.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// Sample returns the position of sample idx.
func (r *Registry) Sample(idx int) (Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.samples[idx]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSampleNotFound, idx)
	}
	return pos.Clone(), nil
}

// CenterPosition returns the center position.
func (r *Registry) CenterPosition() Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.center.Clone()
}

// Samples returns a copy of every sample position.
func (r *Registry) Samples() map[int]Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int]Position, len(r.samples))
	for idx, pos := range r.samples {
		out[idx] = pos.Clone()
	}
	return out
}

// readAxes reads the current position of every configured axis.
func (r *Registry) readAxes(ctx context.Context, names []string) (Position, error) {
	pos := make(Position, len(names))
	for _, name := range names {
		m, ok := r.axes[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAxis, name)
		}
		v, err := m.Position(ctx)
		if err != nil {
			return nil, err
		}
		pos[name] = v
	}
	return pos, nil
}

// SaveSample stores the current motor positions as sample idx, adding the
// sample if it is new.
func (r *Registry) SaveSample(ctx context.Context, idx int) error {
	pos, err := r.readAxes(ctx, AxisNames)
	if err != nil {
		return fmt.Errorf("saving sample %d: %w", idx, err)
	}
	if r.repo != nil {
		if err := r.repo.SaveSample(ctx, idx, pos); err != nil {
			return fmt.Errorf("saving sample %d: %w", idx, err)
		}
	}

	r.mu.Lock()
	r.samples[idx] = pos
	r.mu.Unlock()

	r.logger.Info("sample saved", "index", idx, "position", pos)
	return nil
}

// SaveCenter stores the current motor positions as the center.
func (r *Registry) SaveCenter(ctx context.Context) error {
	pos, err := r.readAxes(ctx, AxisNames)
	if err != nil {
		return fmt.Errorf("saving center: %w", err)
	}
	if r.repo != nil {
		if err := r.repo.SaveCenter(ctx, pos); err != nil {
			return fmt.Errorf("saving center: %w", err)
		}
	}

	r.mu.Lock()
	r.center = pos
	r.mu.Unlock()

	r.logger.Info("center saved", "position", pos)
	return nil
}

// SetAllVertTheta copies the current plate_x, plate_y and theta positions
// into every sample, keeping each sample's stage_x and stage_y.
func (r *Registry) SetAllVertTheta(ctx context.Context) error {
	vert, err := r.readAxes(ctx, []string{AxisPlateX, AxisPlateY, AxisTheta})
	if err != nil {
		return fmt.Errorf("reading plate alignment: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	updated := make(map[int]Position, len(r.samples))
	for idx, pos := range r.samples {
		p := pos.Clone()
		for name, v := range vert {
			p[name] = v
		}
		updated[idx] = p
	}
	if r.repo != nil {
		if err := r.repo.SaveSamples(ctx, updated); err != nil {
			return fmt.Errorf("saving aligned samples: %w", err)
		}
	}
	r.samples = updated

	r.logger.Info("plate alignment applied to all samples", "samples", len(updated), "alignment", vert)
	return nil
}

// LocList returns per-axis position columns for the selected positions, in
// AxisNames order per entry. All lists samples in ascending index order.
func (r *Registry) LocList(sel Selector) (map[string][]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var positions []Position
	switch {
	case sel.IsCenter():
		positions = []Position{r.center}
	case sel.IsAll():
		for _, idx := range sortedKeys(r.samples) {
			positions = append(positions, r.samples[idx])
		}
	default:
		for _, idx := range sel.IndexList() {
			pos, ok := r.samples[idx]
			if !ok {
				return nil, fmt.Errorf("%w: %d", ErrSampleNotFound, idx)
			}
			positions = append(positions, pos)
		}
	}

	cols := make(map[string][]float64, len(AxisNames))
	for _, name := range AxisNames {
		col := make([]float64, 0, len(positions))
		for _, pos := range positions {
			col = append(col, pos[name])
		}
		cols[name] = col
	}
	return cols, nil
}

// Points returns the selected positions as scan points, for scan.Runner.
func (r *Registry) Points(sel Selector) ([]scan.Point, error) {
	cols, err := r.LocList(sel)
	if err != nil {
		return nil, err
	}
	n := len(cols[AxisStageX])
	points := make([]scan.Point, n)
	for i := range n {
		p := make(scan.Point, len(AxisNames))
		for _, name := range AxisNames {
			p[name] = cols[name][i]
		}
		points[i] = p
	}
	return points, nil
}

// MoveTo drives every axis to the single position selected by sel: the
// center or exactly one index.
func (r *Registry) MoveTo(ctx context.Context, sel Selector) error {
	var pos Position
	if sel.IsCenter() {
		pos = r.CenterPosition()
	} else {
		idx := sel.IndexList()
		if len(idx) != 1 {
			return fmt.Errorf("%w: move needs one position, got %s", ErrInvalidSelector, sel)
		}
		var err error
		if pos, err = r.Sample(idx[0]); err != nil {
			return err
		}
	}

	for _, name := range AxisNames {
		v, ok := pos[name]
		if !ok {
			continue
		}
		m, ok := r.axes[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAxis, name)
		}
		if err := m.MoveTo(ctx, v); err != nil {
			return fmt.Errorf("moving %s: %w", name, err)
		}
	}
	r.logger.Info("stage moved", "selector", sel.String())
	return nil
}
