package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "beamcore",
		Short: "beamcore - beamline acquisition core",
		Long: `beamcore drives beamline hardware over a channel backend: a binary
shutter, the HiTp sample stage, the plate leveling loop and array detectors
whose frames are written to external storage.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("beamcore {{.Version}} (commit " + commit + ", built " + date + ")\n")

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		newServeCmd(opts),
		newShutterCmd(opts),
		newLevelCmd(opts),
		newMeshCmd(opts),
		newScanCmd(opts),
		newSamplesCmd(opts),
		newAssetsCmd(opts),
		newDBCmd(opts),
	)
	return root
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
