package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/output"
)

type processOptions struct {
	files      []string
	jsonOutput bool
}

func newProcessCmd(g *globalOptions) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process [file...]",
		Short: "Index files so they can be searched",
		Long: `Extract the text of each file, embed it and record it in the catalog.

Files with an unsupported extension or no text are skipped. Processing a
file again appends a new vector row and refreshes its catalog entry.`,
		Example: `  magicfolder process --file notes/meeting.md
  magicfolder process report.txt todo.txt --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := append(append([]string{}, opts.files...), args...)
			return runProcess(cmd.Context(), cmd, g, paths, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "File to process (repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// runProcess processes every path and returns the first failure after
// trying them all.
func runProcess(ctx context.Context, cmd *cobra.Command, g *globalOptions, paths []string, opts processOptions) error {
	if len(paths) == 0 {
		return mferrors.Validation(mferrors.ErrCodeInvalidInput, "no file given").
			WithSuggestion("Pass a path: magicfolder process --file <path>")
	}

	a, err := g.openApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())
	results := make([]*index.ProcessResult, 0, len(paths))
	var firstErr error

	for _, p := range paths {
		res, err := a.Indexer.Process(ctx, p)
		if err != nil {
			slog.Error("process_failed", append([]any{slog.String("path", p)}, mferrors.FormatForLog(err)...)...)
			if !opts.jsonOutput {
				out.Error(fmt.Sprintf("%s: %v", p, err))
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
		if opts.jsonOutput {
			continue
		}
		switch res.Status {
		case index.StatusProcessed:
			out.Successf("Processed %s (id %d)", res.Path, *res.ID)
		default:
			out.Skipped(fmt.Sprintf("Skipped %s: %s", res.Path, res.Message))
		}
	}

	if opts.jsonOutput {
		if err := out.JSON(results); err != nil {
			return err
		}
	}
	return firstErr
}
