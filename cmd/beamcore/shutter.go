package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/shutter"
)

// withBeamline opens the beamline for a single command and closes it after.
func withBeamline(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, b *beamline) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := openBeamline(ctx, getConfigPath(opts.configPath))
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func newShutterCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "shutter",
		Short: "Operate the beam shutter",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the motion")

	move := func(target string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			t := target
			if t == "" {
				t = args[0]
			}
			return withBeamline(cmd, opts, func(ctx context.Context, b *beamline) error {
				return setShutter(ctx, cmd, opts, b.shutter, t, timeout)
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "open",
			Short: "Open the shutter",
			Args:  cobra.NoArgs,
			RunE:  move(shutter.LabelOpen),
		},
		&cobra.Command{
			Use:   "close",
			Short: "Close the shutter",
			Args:  cobra.NoArgs,
			RunE:  move(shutter.LabelClose),
		},
		&cobra.Command{
			Use:   "set <target>",
			Short: "Move the shutter to a target name or synonym",
			Args:  cobra.ExactArgs(1),
			RunE:  move(""),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the shutter position and accepted targets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withBeamline(cmd, opts, func(ctx context.Context, b *beamline) error {
					return shutterStatus(ctx, cmd, opts, b.shutter)
				})
			},
		},
	)
	return cmd
}

func setShutter(ctx context.Context, cmd *cobra.Command, opts *rootOptions, sh *shutter.Shutter, target string, timeout time.Duration) error {
	f, err := sh.Set(ctx, target)
	if err != nil {
		return fmt.Errorf("shutter %s: %w", target, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := f.Wait(waitCtx); err != nil {
		return fmt.Errorf("shutter %s: %w", target, err)
	}
	return shutterStatus(ctx, cmd, opts, sh)
}

func shutterStatus(ctx context.Context, cmd *cobra.Command, opts *rootOptions, sh *shutter.Shutter) error {
	state, err := sh.State(ctx)
	if err != nil {
		return fmt.Errorf("reading shutter: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeJSON(out, map[string]any{
			"name":    sh.Name(),
			"state":   state,
			"choices": sh.Choices(),
		})
	}
	fmt.Fprintf(out, "%s: %s\n", sh.Name(), state)
	return nil
}
