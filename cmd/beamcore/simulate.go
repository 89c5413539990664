package main

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/device"
	"github.com/ssrltools/beamcore/internal/infrastructure/config"
	"github.com/ssrltools/beamcore/internal/stage"
)

// Simulated plate: the leveling sensor reads simDistance plus the tilt left
// after the vertical actuators' correction, scaled by the horizontal position.
const (
	simDistance = 50.0
	simTiltX    = 0.05
	simTiltY    = -0.03
)

// Simulated detector frames are simFrameSize square.
const simFrameSize = 16

// newSimulation builds the memory backend for cfg. Every stage axis and the
// shutter command get a readback that follows the setpoint, and the leveling
// sensor reads a tilted plate.
func newSimulation(cfg *config.Config) *channel.Memory {
	initial := make(map[string]float64, len(cfg.Channels.Initial)+len(cfg.Stage.Axes)+1)
	links := make(map[string]string, len(cfg.Channels.Links)+len(cfg.Stage.Axes)+1)

	for _, setpoint := range cfg.Stage.Axes {
		initial[setpoint] = 0
		links[setpoint] = channel.Readback(setpoint)
	}
	initial[cfg.Shutter.Command] = cfg.Shutter.CloseValue
	links[cfg.Shutter.Command] = cfg.Shutter.Readback

	maps.Copy(initial, cfg.Channels.Initial)
	maps.Copy(links, cfg.Channels.Links)

	mem := channel.NewMemory(initial, links)
	mem.Derive(cfg.Leveling.Sensor, plateSensor(cfg))
	return mem
}

type plateTerm struct {
	vertical   string // readback channel
	horizontal string // readback channel
	point1     float64
	tilt       float64
}

// plateSensor returns the distance reading of a plate tilted by simTiltX and
// simTiltY. Raising the vertical actuator of an axis increases the distance
// measured on that axis' point1 side.
func plateSensor(cfg *config.Config) channel.DeriveFunc {
	var terms []plateTerm
	for _, ax := range []struct {
		cfg  config.LevelingAxisConfig
		tilt float64
	}{{cfg.Leveling.X, simTiltX}, {cfg.Leveling.Y, simTiltY}} {
		vertical, ok1 := cfg.Stage.Axes[ax.cfg.Vertical]
		horizontal, ok2 := cfg.Stage.Axes[ax.cfg.Horizontal]
		if !ok1 || !ok2 || ax.cfg.Point1 == 0 {
			continue
		}
		terms = append(terms, plateTerm{
			vertical:   channel.Readback(vertical),
			horizontal: channel.Readback(horizontal),
			point1:     ax.cfg.Point1,
			tilt:       ax.tilt,
		})
	}

	return func(v map[string]float64) float64 {
		d := simDistance
		for _, t := range terms {
			d += (v[t.vertical] + t.tilt) * v[t.horizontal] / t.point1
		}
		return d
	}
}

// simulatedCapture returns frames with a gaussian spot whose intensity varies
// with the stage position, read through io at capture time.
func simulatedCapture(io channel.IO, cfg *config.Config) device.CaptureFunc {
	xChan := channel.Readback(cfg.Stage.Axes[stage.AxisStageX])
	yChan := channel.Readback(cfg.Stage.Axes[stage.AxisStageY])

	return func(ctx context.Context) (asset.Array, error) {
		x, err := io.Read(ctx, xChan)
		if err != nil {
			return asset.Array{}, fmt.Errorf("reading stage x: %w", err)
		}
		y, err := io.Read(ctx, yChan)
		if err != nil {
			return asset.Array{}, fmt.Errorf("reading stage y: %w", err)
		}

		peak := 1000 * math.Exp(-(x*x+y*y)/(2*40*40))
		c := float64(simFrameSize-1) / 2
		data := make([]float64, simFrameSize*simFrameSize)
		for i := range simFrameSize {
			for j := range simFrameSize {
				di, dj := float64(i)-c, float64(j)-c
				data[i*simFrameSize+j] = peak * math.Exp(-(di*di+dj*dj)/8)
			}
		}
		return asset.Array{Shape: []int{simFrameSize, simFrameSize}, Data: data}, nil
	}
}
