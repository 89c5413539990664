package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/stage"
)

func newSamplesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Manage saved HiTp sample positions",
	}

	onBeamline := func(fn func(ctx context.Context, cmd *cobra.Command, b *beamline, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withBeamline(cmd, opts, func(ctx context.Context, b *beamline) error {
				return fn(ctx, cmd, b, args)
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [selector]",
			Short: `List positions: "all" (default), "center" or comma separated indices`,
			Args:  cobra.MaximumNArgs(1),
			RunE: onBeamline(func(_ context.Context, cmd *cobra.Command, b *beamline, args []string) error {
				return listSamples(cmd, opts, b.stage, strings.Join(args, ""))
			}),
		},
		&cobra.Command{
			Use:   "save <index>",
			Short: "Save the current motor positions as a sample",
			Args:  cobra.ExactArgs(1),
			RunE: onBeamline(func(ctx context.Context, _ *cobra.Command, b *beamline, args []string) error {
				idx, err := strconv.Atoi(args[0])
				if err != nil || idx < 0 {
					return fmt.Errorf("%w: %q", stage.ErrInvalidSelector, args[0])
				}
				return b.stage.SaveSample(ctx, idx)
			}),
		},
		&cobra.Command{
			Use:   "center",
			Short: "Save the current motor positions as the center",
			Args:  cobra.NoArgs,
			RunE: onBeamline(func(ctx context.Context, _ *cobra.Command, b *beamline, _ []string) error {
				return b.stage.SaveCenter(ctx)
			}),
		},
		&cobra.Command{
			Use:   "align",
			Short: "Copy the current plate tilt and theta into every sample",
			Args:  cobra.NoArgs,
			RunE: onBeamline(func(ctx context.Context, _ *cobra.Command, b *beamline, _ []string) error {
				return b.stage.SetAllVertTheta(ctx)
			}),
		},
		&cobra.Command{
			Use:   "move <selector>",
			Short: `Move the stage to one sample or "center"`,
			Args:  cobra.ExactArgs(1),
			RunE: onBeamline(func(ctx context.Context, _ *cobra.Command, b *beamline, args []string) error {
				sel, err := stage.ParseSelector(args[0])
				if err != nil {
					return err
				}
				return b.stage.MoveTo(ctx, sel)
			}),
		},
	)
	return cmd
}

func listSamples(cmd *cobra.Command, opts *rootOptions, reg *stage.Registry, text string) error {
	sel, err := stage.ParseSelector(text)
	if err != nil {
		return err
	}
	cols, err := reg.LocList(sel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeJSON(out, cols)
	}

	var labels []string
	switch {
	case sel.IsCenter():
		labels = []string{stage.CenterSelector}
	case sel.IsAll():
		keys := make([]int, 0, reg.Len())
		for idx := range reg.Samples() {
			keys = append(keys, idx)
		}
		slices.Sort(keys)
		for _, idx := range keys {
			labels = append(labels, strconv.Itoa(idx))
		}
	default:
		for _, idx := range sel.IndexList() {
			labels = append(labels, strconv.Itoa(idx))
		}
	}

	fmt.Fprintf(out, "%-8s", "index")
	for _, name := range stage.AxisNames {
		fmt.Fprintf(out, " %10s", name)
	}
	fmt.Fprintln(out)
	for i, label := range labels {
		fmt.Fprintf(out, "%-8s", label)
		for _, name := range stage.AxisNames {
			fmt.Fprintf(out, " %10.4f", cols[name][i])
		}
		fmt.Fprintln(out)
	}
	return nil
}
