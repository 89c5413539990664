// Package motor drives positioners through the channel I/O contract.
package motor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ssrltools/beamcore/internal/channel"
)

// ErrNotInPosition is returned when the readback does not reach the target
// within the settle timeout.
var ErrNotInPosition = errors.New("motor: not in position")

const defaultPollInterval = 50 * time.Millisecond

// Axis is a single positioner with a setpoint channel and a readback channel.
//
// When Tolerance is zero MoveTo returns as soon as the setpoint is written.
// Otherwise it polls the readback until it is within Tolerance of the target
// or SettleTimeout elapses.
type Axis struct {
	Name     string
	Setpoint string
	Readback string

	Tolerance     float64
	SettleTimeout time.Duration
	PollInterval  time.Duration

	io channel.IO
}

// New creates an axis using the "<setpoint>.RBV" readback convention.
func New(name, setpoint string, io channel.IO) *Axis {
	return &Axis{
		Name:     name,
		Setpoint: setpoint,
		Readback: channel.Readback(setpoint),
		io:       io,
	}
}

// Position reads the axis readback.
func (a *Axis) Position(ctx context.Context) (float64, error) {
	v, err := a.io.Read(ctx, a.Readback)
	if err != nil {
		return 0, fmt.Errorf("reading %s position: %w", a.Name, err)
	}
	return v, nil
}

// MoveTo writes target to the setpoint and, when a tolerance is set, waits
// for the readback to arrive.
func (a *Axis) MoveTo(ctx context.Context, target float64) error {
	if err := a.io.Write(ctx, a.Setpoint, target); err != nil {
		return fmt.Errorf("moving %s to %g: %w", a.Name, target, err)
	}
	if a.Tolerance <= 0 {
		return nil
	}
	return a.waitInPosition(ctx, target)
}

// MoveBy moves the axis relative to its current readback.
func (a *Axis) MoveBy(ctx context.Context, delta float64) error {
	pos, err := a.Position(ctx)
	if err != nil {
		return err
	}
	return a.MoveTo(ctx, pos+delta)
}

func (a *Axis) waitInPosition(ctx context.Context, target float64) error {
	poll := a.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if a.SettleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.SettleTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		pos, err := a.Position(ctx)
		if err != nil {
			return err
		}
		if math.Abs(pos-target) <= a.Tolerance {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s at %g, target %g: %w", ErrNotInPosition, a.Name, pos, target, ctx.Err())
		case <-ticker.C:
		}
	}
}
