package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/stage"
)

// meshOptions describes a square stage_x/stage_y mesh clipped to a circle.
type meshOptions struct {
	radius float64
	step   float64
	pin    float64
	center []float64
}

func (o *meshOptions) bind(cmd *cobra.Command, required bool) {
	cmd.Flags().Float64Var(&o.radius, "radius", 0, "circle radius")
	cmd.Flags().Float64Var(&o.step, "step", 0, "grid spacing")
	cmd.Flags().Float64Var(&o.pin, "pin", 0, "coordinate that must be a grid node on both axes")
	cmd.Flags().Float64SliceVar(&o.center, "center", []float64{0, 0}, "circle center as x,y")
	if required {
		_ = cmd.MarkFlagRequired("radius")
		_ = cmd.MarkFlagRequired("step")
	}
}

// circleMesh converts the flags to a stage mesh. The pin is applied only
// when --pin was given.
func (o *meshOptions) circleMesh(cmd *cobra.Command) (scan.CircleMesh, error) {
	if len(o.center) != 2 {
		return scan.CircleMesh{}, errors.New("--center takes exactly two values: x,y")
	}
	m := scan.CircleMesh{
		XAxis:  stage.AxisStageX,
		YAxis:  stage.AxisStageY,
		Center: scan.XY{X: o.center[0], Y: o.center[1]},
		Radius: o.radius,
		Step:   o.step,
	}
	if cmd.Flags().Changed("pin") {
		pin := o.pin
		m.Pin = &pin
	}
	return m, nil
}

func newMeshCmd(opts *rootOptions) *cobra.Command {
	mo := &meshOptions{}
	cmd := &cobra.Command{
		Use:   "mesh",
		Short: "Print the stage points of a circular mesh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mesh, err := mo.circleMesh(cmd)
			if err != nil {
				return err
			}
			points, filter, err := mesh.Build()
			if err != nil {
				return err
			}

			admitted := make([]scan.Point, 0, len(points))
			for _, p := range points {
				if filter.Admit(p) {
					admitted = append(admitted, p)
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, admitted)
			}
			for _, p := range admitted {
				fmt.Fprintf(out, "%g %g\n", p[stage.AxisStageX], p[stage.AxisStageY])
			}
			return nil
		},
	}
	mo.bind(cmd, true)
	return cmd
}
