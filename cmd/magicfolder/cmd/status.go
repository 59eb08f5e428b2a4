package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/output"
)

func newStatusCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index size and cross-store consistency",
		Long: `Show vector table statistics, the catalog row count, catalog queue
depth and a consistency report.

Orphan vectors are rows left behind when the catalog write after an
upsert failed. Duplicate rows come from processing a file more than once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, g, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, g *globalOptions, jsonOutput bool) error {
	a, err := g.openApp(true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	st, err := a.Status(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(st)
	}

	out.Status("📊", "MagicFolder Status")
	out.Newline()
	out.KeyValue("Collection", st.Table.Collection)
	out.KeyValue("Dimension", st.Table.Dimension)
	out.KeyValue("Metric", st.Table.Metric)
	out.KeyValue("Vector rows", st.Table.Rows)
	out.KeyValue("Distinct keys", st.Table.DistinctKeys)
	out.KeyValue("Table size", humanBytes(st.Table.DiskBytes))
	out.KeyValue("Search mode", searchMode(st.Table.GraphActive))
	out.KeyValue("Files", st.Files)
	out.KeyValue("Catalog", st.CatalogPath)
	out.KeyValue("Queue", fmt.Sprintf("%d/%d", st.CatalogQueue, st.QueueCapacity))
	out.Newline()

	report := st.Consistency
	orphans := report.Count(index.InconsistencyOrphanVector)
	missing := report.Count(index.InconsistencyMissingVector)
	dups := report.Count(index.InconsistencyDuplicateRows)
	if orphans == 0 && missing == 0 {
		out.Success("Catalog and vector table agree")
	} else {
		out.Warningf("%d orphan vector key(s), %d cataloged file(s) without vectors", orphans, missing)
		for _, issue := range report.Inconsistencies {
			if issue.Type != index.InconsistencyDuplicateRows {
				out.Statusf("", "  %s: %s", issue.Type, issue.Key)
			}
		}
	}
	if dups > 0 {
		out.Statusf("ℹ️ ", "%d file(s) stored more than once (reprocessed)", dups)
	}
	return nil
}

func searchMode(graph bool) string {
	if graph {
		return "hnsw"
	}
	return "exact"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
