package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/magicfolder/magicfolder/internal/embed"
	"github.com/magicfolder/magicfolder/internal/output"
	"github.com/magicfolder/magicfolder/internal/preflight"
)

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the system is ready to index and search",
		Long: `Run preflight checks:
  - the data directory is writable
  - at least 100 MB of disk is free
  - the open file limit is high enough for watching
  - the embedding service is reachable and the model is pulled
  - an existing vector table matches embeddings.dimensions

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, g, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details and fixes for each check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, g *globalOptions, verbose, jsonOutput bool) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	embedder, err := embed.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	var w io.Writer = cmd.OutOrStdout()
	if jsonOutput {
		w = io.Discard
	}
	checker := preflight.New(
		preflight.WithEmbedder(embedder),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(w),
	)
	results := checker.RunAll(ctx, cfg)

	if jsonOutput {
		if err := output.NewPlain(cmd.OutOrStdout()).JSON(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}
