package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/output"
)

type searchOptions struct {
	query      string
	topK       int
	topKSet    bool
	jsonOutput bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the files closest in meaning to a query",
		Long: `Embed the query and return the nearest indexed files, closest first.

The score is the raw distance from the vector table: smaller is more
similar. A file processed more than once can appear more than once.`,
		Example: `  magicfolder search --query "quarterly budget" --top-k 3
  magicfolder search onboarding checklist --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.query == "" {
				opts.query = strings.Join(args, " ")
			}
			opts.topKSet = cmd.Flags().Changed("top-k")
			return runSearch(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Query text")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results (default search.default_top_k)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts searchOptions) error {
	if strings.TrimSpace(opts.query) == "" {
		return mferrors.Validation(mferrors.ErrCodeQueryEmpty, "query must not be empty").
			WithSuggestion(`Pass a query: magicfolder search --query "..."`)
	}

	a, err := g.openApp(true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	topK := opts.topK
	if !opts.topKSet {
		topK = a.Engine.DefaultTopK()
	}

	results, err := a.Engine.Search(ctx, opts.query, topK)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(results)
	}

	if len(results) == 0 {
		out.Status("🔍", "No matching files")
		return nil
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{strconv.Itoa(i + 1), fmt.Sprintf("%.4f", r.Score), r.Path}
	}
	out.Table([]string{"#", "DISTANCE", "PATH"}, rows)
	return nil
}
