// Package leveling equalises a distance sensor across a sample plate by
// stepping a vertical actuator.
//
// For every multiplier m, coarse to fine, the controller measures the sensor
// at point2 and point1 and, while |v1 - v2| > threshold*m, moves the
// vertical actuator by step*m/2 and remeasures point1. Running out of
// iterations at one multiplier is logged and the next multiplier is tried;
// only I/O failures abort with ErrControlLoop.
package leveling

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/infrastructure/config"
)

// Positioner is a motor the controller can drive. *motor.Axis satisfies it.
type Positioner interface {
	MoveTo(ctx context.Context, target float64) error
	MoveBy(ctx context.Context, delta float64) error
}

// Recorder receives one telemetry sample per correction.
// *influxdb.Client satisfies it.
type Recorder interface {
	WriteLevelingStep(axis string, iteration int, v1, v2, diff, move float64)
}

// Logger defines the logging interface used by the Controller.
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

// Params tunes the control loop.
type Params struct {
	Multipliers       []float64
	Threshold         float64
	StepSize          float64
	IterLimit         int
	CalibrationFactor float64

	// RaiseWhenCloser moves the actuator up when point1 reads smaller than
	// point2. Set it to false for sensors mounted the other way round.
	RaiseWhenCloser bool

	// SettleDelay is waited after every actuator move.
	SettleDelay time.Duration
}

// DefaultParams returns the stock loop parameters.
func DefaultParams() Params {
	return Params{
		Multipliers:       []float64{20, 10, 5, 2},
		Threshold:         0.001,
		StepSize:          0.001,
		IterLimit:         20,
		CalibrationFactor: 1,
		RaiseWhenCloser:   true,
	}
}

// ParamsFromConfig converts the leveling configuration section.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Multipliers:       append([]float64(nil), cfg.Leveling.Multipliers...),
		Threshold:         cfg.Leveling.Threshold,
		StepSize:          cfg.Leveling.StepSize,
		IterLimit:         cfg.Leveling.IterLimit,
		CalibrationFactor: cfg.Leveling.CalibrationFactor,
		RaiseWhenCloser:   cfg.Leveling.RaiseWhenCloser,
		SettleDelay:       cfg.GetLevelingSettleDelay(),
	}
}

// Validate reports parameters the loop cannot run with.
func (p Params) Validate() error {
	switch {
	case len(p.Multipliers) == 0:
		return fmt.Errorf("%w: no multipliers", ErrInvalidParams)
	case p.IterLimit < 1:
		return fmt.Errorf("%w: iter_limit %d", ErrInvalidParams, p.IterLimit)
	case p.Threshold <= 0 || p.StepSize <= 0:
		return fmt.Errorf("%w: threshold %v, step size %v", ErrInvalidParams, p.Threshold, p.StepSize)
	case p.CalibrationFactor == 0:
		return fmt.Errorf("%w: zero calibration factor", ErrInvalidParams)
	}
	for _, m := range p.Multipliers {
		if m <= 0 {
			return fmt.Errorf("%w: multiplier %v", ErrInvalidParams, m)
		}
	}
	return nil
}

// Target is one leveling run: the vertical actuator to correct and the two
// positions of the horizontal axis the sensor is compared at.
type Target struct {
	Name       string
	Vertical   Positioner
	Horizontal Positioner
	Point1     float64
	Point2     float64
}

// Pass records the work done at one multiplier.
type Pass struct {
	Multiplier float64
	Iterations int
	Converged  bool

	// V1 and V2 are the last calibrated readings at point1 and point2.
	V1 float64
	V2 float64
}

// Report is the outcome of a leveling run.
type Report struct {
	Target      string
	Passes      []Pass
	Corrections int
}

// Converged reports whether the finest pass ended within its tolerance.
func (r Report) Converged() bool {
	return len(r.Passes) > 0 && r.Passes[len(r.Passes)-1].Converged
}

// Controller runs the leveling loop against one distance sensor.
type Controller struct {
	io       channel.IO
	sensor   string
	params   Params
	logger   Logger
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a controller reading the sensor channel through io.
func New(io channel.IO, sensor string, params Params) *Controller {
	return &Controller{
		io:     io,
		sensor: sensor,
		params: params,
		logger: noopLogger{},
		sleep:  sleepContext,
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// SetRecorder sets the telemetry recorder. nil disables recording.
func (c *Controller) SetRecorder(r Recorder) {
	c.recorder = r
}

// Params returns the loop parameters.
func (c *Controller) Params() Params {
	return c.params
}

// Level runs every multiplier pass on t. The returned report covers the
// passes completed so far even when err is non-nil.
func (c *Controller) Level(ctx context.Context, t Target) (Report, error) {
	report := Report{Target: t.Name}
	if err := c.params.Validate(); err != nil {
		return report, err
	}

	for _, m := range c.params.Multipliers {
		pass, err := c.pass(ctx, t, m, &report)
		report.Passes = append(report.Passes, pass)
		if err != nil {
			c.logger.Error("leveling aborted", "target", t.Name, "multiplier", m, "error", err)
			return report, err
		}
		if !pass.Converged {
			c.logger.Warn("leveling iteration limit reached",
				"target", t.Name, "multiplier", m, "iterations", pass.Iterations,
				"diff", pass.V1-pass.V2)
		}
	}

	c.logger.Info("leveling finished", "target", t.Name,
		"corrections", report.Corrections, "converged", report.Converged())
	return report, nil
}

func (c *Controller) pass(ctx context.Context, t Target, m float64, report *Report) (Pass, error) {
	pass := Pass{Multiplier: m}

	v2, err := c.measureAt(ctx, t.Horizontal, t.Point2)
	if err != nil {
		return pass, err
	}
	v1, err := c.measureAt(ctx, t.Horizontal, t.Point1)
	if err != nil {
		return pass, err
	}
	pass.V1, pass.V2 = v1, v2

	tolerance := c.params.Threshold * m
	step := c.params.StepSize * m / 2

	for math.Abs(pass.V1-pass.V2) > tolerance {
		if pass.Iterations >= c.params.IterLimit {
			return pass, nil
		}

		move := c.direction(pass.V1, pass.V2) * step
		if err := t.Vertical.MoveBy(ctx, move); err != nil {
			return pass, fmt.Errorf("%w: moving vertical by %g: %w", ErrControlLoop, move, err)
		}
		if c.params.SettleDelay > 0 {
			if err := c.sleep(ctx, c.params.SettleDelay); err != nil {
				return pass, fmt.Errorf("%w: %w", ErrControlLoop, err)
			}
		}
		pass.Iterations++
		report.Corrections++

		v1, err := c.measure(ctx)
		if err != nil {
			return pass, err
		}
		pass.V1 = v1

		if c.recorder != nil {
			c.recorder.WriteLevelingStep(t.Name, report.Corrections, pass.V1, pass.V2, pass.V1-pass.V2, move)
		}
		c.logger.Debug("leveling correction", "target", t.Name, "multiplier", m,
			"iteration", pass.Iterations, "move", move, "v1", pass.V1, "v2", pass.V2)
	}

	pass.Converged = true
	return pass, nil
}

// direction is +1 or -1: the side reading the smaller distance is raised,
// unless RaiseWhenCloser is false.
func (c *Controller) direction(v1, v2 float64) float64 {
	dir := 1.0
	if v1 > v2 {
		dir = -1
	}
	if !c.params.RaiseWhenCloser {
		dir = -dir
	}
	return dir
}

func (c *Controller) measureAt(ctx context.Context, horizontal Positioner, pos float64) (float64, error) {
	if err := horizontal.MoveTo(ctx, pos); err != nil {
		return 0, fmt.Errorf("%w: moving horizontal to %g: %w", ErrControlLoop, pos, err)
	}
	return c.measure(ctx)
}

func (c *Controller) measure(ctx context.Context) (float64, error) {
	raw, err := c.io.Read(ctx, c.sensor)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %w", ErrControlLoop, c.sensor, err)
	}
	return raw * c.params.CalibrationFactor, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
