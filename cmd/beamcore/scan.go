package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/scan"
)

type scanOptions struct {
	mesh      meshOptions
	samples   string
	detector  string
	xsp3      string
	monitor   string
	threshold float64
	timeout   time.Duration
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	so := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Sweep the stage and acquire a frame at every admitted point",
		Long: `scan visits either a circular stage mesh (--radius, --step) or saved
sample positions (--samples) and triggers the detectors at every point. Frames
are written under assets.root and their documents go to the asset store, the
journal and, when enabled, MQTT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBeamline(cmd, opts, func(ctx context.Context, b *beamline) error {
				return runScan(ctx, cmd, opts, b, so)
			})
		},
	}
	so.mesh.bind(cmd, false)
	cmd.Flags().StringVar(&so.samples, "samples", "", `saved samples to visit instead of a mesh: "all", "center" or indices`)
	cmd.Flags().StringVar(&so.detector, "detector", "cam", "data key of the array detector")
	cmd.Flags().StringVar(&so.xsp3, "xsp3", "", "channel prefix of an Xspress3 detector to trigger as well")
	cmd.Flags().StringVar(&so.monitor, "monitor", "", "scalar channel read after every point")
	cmd.Flags().Float64Var(&so.threshold, "threshold", 0, "skip points while the monitor exceeds this value (needs --monitor)")
	cmd.Flags().DurationVar(&so.timeout, "trigger-timeout", scan.DefaultTriggerTimeout, "per-point trigger timeout")
	return cmd
}

func (so *scanOptions) plan(cmd *cobra.Command, b *beamline) (sweepPlan, error) {
	plan := sweepPlan{
		Detector:       so.detector,
		XSP3:           so.xsp3,
		Monitor:        so.monitor,
		TriggerTimeout: so.timeout,
	}
	if cmd.Flags().Changed("threshold") {
		limit := so.threshold
		plan.Threshold = &limit
	}

	var err error
	if cmd.Flags().Changed("samples") {
		plan.Points, err = b.samplePoints(so.samples)
		return plan, err
	}
	mesh, err := so.mesh.circleMesh(cmd)
	if err != nil {
		return plan, err
	}
	plan.Points, plan.Filter, err = mesh.Build()
	return plan, err
}

func runScan(ctx context.Context, cmd *cobra.Command, opts *rootOptions, b *beamline, so *scanOptions) error {
	plan, err := so.plan(cmd, b)
	if err != nil {
		return err
	}

	sum, err := b.sweep(ctx, plan)
	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		if jerr := writeJSON(out, sum); jerr != nil {
			return jerr
		}
	} else {
		fmt.Fprintf(out, "visited %d, skipped %d, %d records, %d documents\n",
			sum.Visited, sum.Skipped, len(sum.Records), sum.Documents)
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}
