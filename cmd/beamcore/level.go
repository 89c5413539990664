package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLevelCmd(opts *rootOptions) *cobra.Command {
	var axes []string

	cmd := &cobra.Command{
		Use:   "level",
		Short: "Level the sample plate with the distance sensor",
		Long: `level runs the plate leveling control loop on each requested axis. For
every multiplier the sensor is read at the axis' two configured positions and
the vertical actuator is stepped until the readings agree within threshold.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBeamline(cmd, opts, func(ctx context.Context, b *beamline) error {
				return level(ctx, cmd, opts, b, axes)
			})
		},
	}
	cmd.Flags().StringSliceVar(&axes, "axis", []string{"x", "y"}, "axes to level, in order (x, y)")
	return cmd
}

func level(ctx context.Context, cmd *cobra.Command, opts *rootOptions, b *beamline, axes []string) error {
	out := cmd.OutOrStdout()
	for _, axis := range axes {
		report, err := b.levelAxis(ctx, axis)
		if errors.Is(err, errUnknownLevelAxis) {
			return err
		}
		if opts.jsonOutput {
			if jerr := writeJSON(out, report); jerr != nil {
				return jerr
			}
		} else {
			for _, p := range report.Passes {
				fmt.Fprintf(out, "%s x%-4g iterations=%-3d converged=%-5t diff=%.6f\n",
					axis, p.Multiplier, p.Iterations, p.Converged, p.V1-p.V2)
			}
			fmt.Fprintf(out, "%s: %d corrections, converged=%t\n", axis, report.Corrections, report.Converged())
		}
		if err != nil {
			return fmt.Errorf("leveling %s: %w", axis, err)
		}
	}
	return nil
}
