package cmd

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/output"
	"github.com/magicfolder/magicfolder/internal/store"
)

type filesOptions struct {
	limit      int
	offset     int
	jsonOutput bool
}

func newFilesCmd(g *globalOptions) *cobra.Command {
	var opts filesOptions

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List cataloged files",
		Long:  `List catalog entries ordered by id, with the time each file was last processed.`,
		Example: `  magicfolder files
  magicfolder files --limit 20 --offset 40 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFiles(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "Maximum number of entries (0 for all)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Entries to skip")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runFiles(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts filesOptions) error {
	if opts.limit < 0 || opts.offset < 0 {
		return mferrors.Validation(mferrors.ErrCodeInvalidInput, "limit and offset must be non-negative")
	}

	a, err := g.openApp(true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	records, err := a.Catalog.List(ctx, opts.limit, opts.offset)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		if records == nil {
			records = []*store.FileRecord{}
		}
		return out.JSON(records)
	}
	if len(records) == 0 {
		out.Status("📭", "No files cataloged yet")
		return nil
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{strconv.FormatInt(r.ID, 10), r.ProcessedAt.Local().Format(time.DateTime), r.Path}
	}
	out.Table([]string{"ID", "PROCESSED", "PATH"}, rows)
	return nil
}

// fileInfo is one catalog entry plus its stored vector row count.
type fileInfo struct {
	*store.FileRecord
	VectorRows int `json:"vector_rows"`
}

func newInfoCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show the catalog entry for a file",
		Long: `Show the catalog id, processing time and vector key for a file, plus the
number of vector rows stored under that key. Reprocessing a file adds rows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), cmd, g, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runInfo(ctx context.Context, cmd *cobra.Command, g *globalOptions, path string, jsonOutput bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return mferrors.IO(path, err)
	}

	a, err := g.openApp(true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rec, err := a.Catalog.GetByPath(ctx, abs)
	if err != nil {
		return err
	}
	if rec == nil {
		return mferrors.NotFound(abs).
			WithSuggestion("Process it first: magicfolder process --file " + path)
	}
	info := fileInfo{FileRecord: rec, VectorRows: a.Vectors.CountKey(rec.VectorKey)}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(info)
	}
	out.KeyValue("Path", info.Path)
	out.KeyValue("ID", info.ID)
	out.KeyValue("Processed", info.ProcessedAt.Local().Format(time.RFC3339))
	out.KeyValue("Vector key", info.VectorKey)
	out.KeyValue("Vector rows", info.VectorRows)
	return nil
}
