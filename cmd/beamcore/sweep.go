package main

import (
	"context"
	"time"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/device"
	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/stage"
)

// sweepPlan is one acquisition sweep over the stage.
type sweepPlan struct {
	Points []scan.Point
	Filter scan.Filter // nil admits every point

	// Detector is the data key of the array detector.
	Detector string

	// XSP3 is the channel prefix of an Xspress3 detector; empty skips it.
	XSP3 string

	// Monitor is a scalar channel read after every point. When Threshold is
	// set, points are skipped while the monitor exceeds it.
	Monitor   string
	Threshold *float64

	TriggerTimeout time.Duration
}

// samplePoints returns the saved sample positions picked by selector.
func (b *beamline) samplePoints(selector string) ([]scan.Point, error) {
	sel, err := stage.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return b.stage.Points(sel)
}

// sweep runs plan with a simulated array detector and, when configured, an
// Xspress3 detector. Frames go under assets.root and documents to b.sink.
func (b *beamline) sweep(ctx context.Context, plan sweepPlan) (scan.Summary, error) {
	writer, err := asset.NewWriter(asset.Spec(b.cfg.Assets.Spec), b.cfg.Assets.Root)
	if err != nil {
		return scan.Summary{}, err
	}

	name := plan.Detector
	if name == "" {
		name = "cam"
	}
	cam := device.NewArrayChannel(device.ArrayChannelConfig{
		Name:    name,
		Capture: simulatedCapture(b.io, b.cfg),
		Writer:  writer,
		Pool:    b.pool,
	})
	cam.SetLogger(b.log)
	if b.influx != nil {
		cam.SetRecorder(b.influx)
	}
	detectors := []device.Triggerable{cam}

	if plan.XSP3 != "" {
		xsp3 := device.NewFrameDetector(device.FrameDetectorConfig{
			Name:   "xsp3",
			Prefix: plan.XSP3,
			Root:   b.cfg.Assets.Root,
			IO:     b.io,
			Pool:   b.pool,
		})
		xsp3.SetLogger(b.log)
		detectors = append(detectors, xsp3)
	}

	runner := &scan.Runner{
		Axes:           make(map[string]scan.Mover, len(b.axes)),
		Detectors:      detectors,
		Sink:           b.sink,
		IO:             b.io,
		TriggerTimeout: plan.TriggerTimeout,
	}
	for axis, a := range b.axes {
		runner.Axes[axis] = a
	}

	filter := plan.Filter
	if plan.Monitor != "" {
		runner.Monitors = []string{plan.Monitor}
		if plan.Threshold != nil {
			threshold := scan.Threshold{Limit: *plan.Threshold, Values: runner.LastMonitorValues}
			if filter == nil {
				filter = threshold
			} else {
				filter = scan.All(filter, threshold)
			}
		}
	}
	runner.Filter = filter
	runner.SetLogger(b.log)

	return runner.Run(ctx, plan.Points)
}
