package main

import (
	"context"
	"fmt"

	"github.com/ssrltools/beamcore/internal/api"
	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/stage"
)

// startAPI starts the HTTP API on b and adds its WebSocket hub to the asset
// sinks so subscribed clients see every document as it is emitted.
func startAPI(ctx context.Context, b *beamline) (*api.Server, error) {
	hub := api.NewHub(b.cfg.WS, b.log)
	go hub.Run(ctx)
	b.sink = asset.MultiSink{b.sink, hub}

	srv, err := api.New(api.Deps{
		Config:  b.cfg.API,
		WS:      b.cfg.WS,
		Logger:  b.log,
		Shutter: b.shutter,
		Samples: b.stage,
		Level:   b.levelAxis,
		Scan: func(ctx context.Context, req api.ScanRequest) (scan.Summary, error) {
			plan, err := b.planRequest(req)
			if err != nil {
				return scan.Summary{}, err
			}
			return b.sweep(ctx, plan)
		},
		Health:  b.healthCheck,
		Hub:     hub,
		Version: version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}

// planRequest turns an API scan request into a sweep plan.
func (b *beamline) planRequest(req api.ScanRequest) (sweepPlan, error) {
	plan := sweepPlan{
		Detector:       req.Detector,
		XSP3:           req.XSP3,
		Monitor:        req.Monitor,
		Threshold:      req.Threshold,
		TriggerTimeout: scan.DefaultTriggerTimeout,
	}

	var err error
	if req.Samples != "" {
		plan.Points, err = b.samplePoints(req.Samples)
		return plan, err
	}
	mesh := scan.CircleMesh{
		XAxis:  stage.AxisStageX,
		YAxis:  stage.AxisStageY,
		Center: scan.XY{X: req.Center[0], Y: req.Center[1]},
		Radius: req.Radius,
		Step:   req.Step,
		Pin:    req.Pin,
	}
	plan.Points, plan.Filter, err = mesh.Build()
	return plan, err
}
