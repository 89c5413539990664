package scan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/device"
)

// DefaultTriggerTimeout bounds how long Runner waits for one point's triggers.
const DefaultTriggerTimeout = 30 * time.Second

// Mover positions one axis. *motor.Axis satisfies it.
type Mover interface {
	MoveTo(ctx context.Context, target float64) error
}

// Logger defines the logging interface used by Runner.
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

// Event holds the readings taken at one visited point.
type Event struct {
	Point    Point
	Readings map[string]device.Reading
}

// Summary describes a finished sweep.
type Summary struct {
	Visited   int
	Skipped   int
	Events    []Event
	Records   []device.Record
	Documents int
}

// Runner drives a sequential sweep. Detectors are staged before the first
// point and unstaged after the last; devices implementing device.Flyable are
// completed and collected at the end.
type Runner struct {
	// Axes maps the axis names used in points to their movers.
	Axes map[string]Mover

	// Detectors are triggered at every admitted point. Each must implement
	// device.Triggerable; other capabilities are used when present.
	Detectors []device.Triggerable

	// Filter selects the visited points. nil admits every point.
	Filter Filter

	// Sink receives asset documents after every point. Optional.
	Sink asset.Sink

	// Monitors are scalar channels read after every point; their values
	// feed Threshold filters through LastMonitorValues.
	Monitors []string
	IO       channel.IO

	// TriggerTimeout defaults to DefaultTriggerTimeout.
	TriggerTimeout time.Duration

	logger Logger

	mu      sync.Mutex
	monitor []float64
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// LastMonitorValues returns the monitor readings from the previous point.
func (r *Runner) LastMonitorValues() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.monitor)
}

func (r *Runner) log() Logger {
	if r.logger == nil {
		return noopLogger{}
	}
	return r.logger
}

// Run visits points in order. Errors abort the sweep; detectors staged by
// Run are unstaged in every case, each waiting at most TriggerTimeout for
// captures still in flight.
func (r *Runner) Run(ctx context.Context, points []Point) (sum Summary, err error) {
	staged, err := r.stage(ctx)
	defer func() {
		if uerr := r.unstage(ctx, staged); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()
	if err != nil {
		return sum, err
	}

	for i, p := range points {
		if r.Filter != nil && !r.Filter.Admit(p) {
			sum.Skipped++
			r.log().Debug("point rejected", "index", i, "point", p)
			continue
		}

		ev, n, err := r.visit(ctx, p)
		if err != nil {
			return sum, fmt.Errorf("point %d: %w", i, err)
		}
		sum.Visited++
		sum.Events = append(sum.Events, ev)
		sum.Documents += n
	}

	if sum.Visited > 0 {
		recs, n, err := r.complete(ctx)
		sum.Records = recs
		sum.Documents += n
		if err != nil {
			return sum, err
		}
	}

	r.log().Info("sweep finished", "visited", sum.Visited, "skipped", sum.Skipped, "documents", sum.Documents)
	return sum, nil
}

func (r *Runner) stage(ctx context.Context) ([]device.Stageable, error) {
	var staged []device.Stageable
	for _, d := range r.Detectors {
		s, ok := d.(device.Stageable)
		if !ok {
			continue
		}
		if err := s.Stage(ctx); err != nil {
			return staged, fmt.Errorf("staging detector: %w", err)
		}
		staged = append(staged, s)
	}
	return staged, nil
}

// unstage releases staged detectors in reverse order. It runs even when ctx
// is already cancelled, so each detector gets its own bounded context.
func (r *Runner) unstage(ctx context.Context, staged []device.Stageable) error {
	var errs []error
	for i := len(staged) - 1; i >= 0; i-- {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.triggerTimeout())
		if err := staged[i].Unstage(uctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

func (r *Runner) visit(ctx context.Context, p Point) (Event, int, error) {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		m, ok := r.Axes[name]
		if !ok {
			return Event{}, 0, fmt.Errorf("%w: %s", ErrUnknownAxis, name)
		}
		if err := m.MoveTo(ctx, p[name]); err != nil {
			return Event{}, 0, fmt.Errorf("moving %s: %w", name, err)
		}
	}

	if err := r.triggerAll(ctx); err != nil {
		return Event{}, 0, err
	}

	ev := Event{Point: p.Clone(), Readings: make(map[string]device.Reading)}
	for i, d := range r.Detectors {
		rd, ok := d.(device.Readable)
		if !ok {
			continue
		}
		reading, err := rd.Read()
		if err != nil {
			return Event{}, 0, err
		}
		key := rd.Describe().Source
		if key == "" {
			key = fmt.Sprintf("detector%d", i)
		}
		ev.Readings[key] = reading
	}

	if err := r.readMonitors(ctx); err != nil {
		return Event{}, 0, err
	}

	n, err := r.flushDocuments(ctx)
	return ev, n, err
}

func (r *Runner) triggerAll(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.triggerTimeout())
	defer cancel()

	var errs []error
	for _, d := range r.Detectors {
		f, err := d.Trigger(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := f.Wait(waitCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) triggerTimeout() time.Duration {
	if r.TriggerTimeout <= 0 {
		return DefaultTriggerTimeout
	}
	return r.TriggerTimeout
}

func (r *Runner) readMonitors(ctx context.Context) error {
	if len(r.Monitors) == 0 || r.IO == nil {
		return nil
	}
	values := make([]float64, 0, len(r.Monitors))
	for _, name := range r.Monitors {
		v, err := r.IO.Read(ctx, name)
		if err != nil {
			return fmt.Errorf("reading monitor %s: %w", name, err)
		}
		values = append(values, v)
	}

	r.mu.Lock()
	r.monitor = values
	r.mu.Unlock()
	return nil
}

func (r *Runner) flushDocuments(ctx context.Context) (int, error) {
	var docs []asset.Document
	for _, d := range r.Detectors {
		if e, ok := d.(device.AssetEmitting); ok {
			docs = append(docs, e.CollectAssetDocs()...)
		}
	}
	if len(docs) == 0 || r.Sink == nil {
		return len(docs), nil
	}
	if err := r.Sink.Consume(ctx, docs); err != nil {
		return len(docs), fmt.Errorf("storing asset documents: %w", err)
	}
	return len(docs), nil
}

func (r *Runner) complete(ctx context.Context) ([]device.Record, int, error) {
	var recs []device.Record
	for _, d := range r.Detectors {
		fl, ok := d.(device.Flyable)
		if !ok {
			continue
		}
		f, err := fl.Complete(ctx)
		if err != nil {
			return recs, 0, fmt.Errorf("completing detector: %w", err)
		}
		if err := f.Wait(ctx); err != nil {
			return recs, 0, err
		}
		for rec := range fl.Collect() {
			recs = append(recs, rec)
		}
	}

	n, err := r.flushDocuments(ctx)
	return recs, n, err
}
