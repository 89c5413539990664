package shutter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ssrltools/beamcore/internal/channel"
)

// Readback labels reported by ChannelActuator.
const (
	LabelOpen  = "open"
	LabelClose = "close"
)

// Actuator performs the hardware side of a shutter.
//
// Open and Close block until the commanded motion (and any settle delay) is
// done. Readback reports the current position as a word that Shutter maps
// through its synonym lists.
type Actuator interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Readback(ctx context.Context) (string, error)
}

// ChannelConfig configures a ChannelActuator.
type ChannelConfig struct {
	Command     string
	Readback    string
	OpenValue   float64
	CloseValue  float64
	SettleDelay time.Duration
}

// ChannelActuator drives a shutter through one command channel and one
// readback channel.
type ChannelActuator struct {
	io  channel.IO
	cfg ChannelConfig
}

// NewChannelActuator creates an actuator on io.
func NewChannelActuator(io channel.IO, cfg ChannelConfig) *ChannelActuator {
	return &ChannelActuator{io: io, cfg: cfg}
}

// Open writes the open value and waits for the settle delay.
func (a *ChannelActuator) Open(ctx context.Context) error {
	return a.command(ctx, a.cfg.OpenValue)
}

// Close writes the close value and waits for the settle delay.
func (a *ChannelActuator) Close(ctx context.Context) error {
	return a.command(ctx, a.cfg.CloseValue)
}

func (a *ChannelActuator) command(ctx context.Context, value float64) error {
	if err := a.io.Write(ctx, a.cfg.Command, value); err != nil {
		return err
	}
	if a.cfg.SettleDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(a.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Readback maps the readback value to LabelOpen or LabelClose. Other values
// are returned formatted, which Shutter reports as Unknown.
func (a *ChannelActuator) Readback(ctx context.Context) (string, error) {
	v, err := a.io.Read(ctx, a.cfg.Readback)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", a.cfg.Readback, err)
	}
	switch v {
	case a.cfg.OpenValue:
		return LabelOpen, nil
	case a.cfg.CloseValue:
		return LabelClose, nil
	default:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
}
