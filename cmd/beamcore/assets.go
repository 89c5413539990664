package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/infrastructure/config"
)

// filledDatum is the JSON output of "assets fill".
type filledDatum struct {
	Datum string    `json:"datum_id"`
	Spec  string    `json:"spec"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func newAssetsCmd(opts *rootOptions) *cobra.Command {
	var journal string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect the asset document journal",
		Long: `assets reads the journal of resource and datum documents written during
scans. The journal defaults to assets.journal from the configuration.`,
	}
	cmd.PersistentFlags().StringVar(&journal, "journal", "", "journal file (default assets.journal)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "replay",
			Short: "List every document in the journal",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				docs, err := replayJournal(opts, journal)
				if err != nil {
					return err
				}
				return printDocuments(cmd, opts, docs)
			},
		},
		&cobra.Command{
			Use:   "fill <datum-id>...",
			Short: "Load the arrays behind datums from external storage",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				docs, err := replayJournal(opts, journal)
				if err != nil {
					return err
				}
				return fillDatums(cmd, opts, asset.NewCatalog(docs), args)
			},
		},
	)
	return cmd
}

// replayJournal reads the journal at path, or at assets.journal when path
// is empty.
func replayJournal(opts *rootOptions, path string) ([]asset.Document, error) {
	if path == "" {
		cfg, err := config.Load(getConfigPath(opts.configPath))
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		path = cfg.Assets.Journal
	}
	if path == "" {
		return nil, errors.New("no journal configured; pass --journal")
	}
	return asset.ReplayJournal(path)
}

func printDocuments(cmd *cobra.Command, opts *rootOptions, docs []asset.Document) error {
	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeJSON(out, docs)
	}
	for _, d := range docs {
		switch {
		case d.Resource != nil:
			fmt.Fprintf(out, "resource %s %-8s %s\n", d.Resource.ID, d.Resource.Spec, d.Resource.ResourcePath)
		case d.Datum != nil:
			fmt.Fprintf(out, "datum    %s %v\n", d.Datum.ID, d.Datum.Kwargs)
		}
	}
	fmt.Fprintf(out, "%d documents\n", len(docs))
	return nil
}

func fillDatums(cmd *cobra.Command, opts *rootOptions, c *asset.Catalog, ids []string) error {
	out := cmd.OutOrStdout()
	filled := make([]filledDatum, 0, len(ids))
	for _, id := range ids {
		res, _, err := c.Lookup(id)
		if err != nil {
			return err
		}
		arr, err := c.Fill(id)
		if err != nil {
			return fmt.Errorf("filling %s: %w", id, err)
		}
		filled = append(filled, filledDatum{Datum: id, Spec: string(res.Spec), Shape: arr.Shape, Data: arr.Data})
	}

	if opts.jsonOutput {
		return writeJSON(out, filled)
	}
	for _, f := range filled {
		lo, hi := 0.0, 0.0
		if len(f.Data) > 0 {
			lo, hi = slices.Min(f.Data), slices.Max(f.Data)
		}
		fmt.Fprintf(out, "%s shape=%v min=%g max=%g\n", f.Datum, f.Shape, lo, hi)
	}
	return nil
}
