package cmd

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magicfolder/magicfolder/internal/logging"
)

type logsOptions struct {
	lines  int
	level  string
	filter string
	raw    bool
}

func newLogsCmd(g *globalOptions) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Show the last entries of the JSON log file written by every command.

The file is ~/.magicfolder/logs/magicfolder.log unless --log-file is set.`,
		Example: `  magicfolder logs -n 100
  magicfolder logs --level warn --filter process_`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.OutOrStdout(), g.logFile, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "debug", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries whose line matches this regex")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the JSON lines unchanged")

	return cmd
}

func runLogs(w io.Writer, logFile string, opts logsOptions) error {
	var pattern *regexp.Regexp
	if opts.filter != "" {
		p, err := regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
		pattern = p
	}

	path, err := logging.FindLogFile(logFile)
	if err != nil {
		return err
	}

	// Filter before taking the tail so -n counts matching entries.
	n := opts.lines
	if pattern != nil {
		n = 1 << 20
	}
	entries, err := logging.Tail(path, n, logging.ParseLevel(opts.level))
	if err != nil {
		return err
	}
	if pattern != nil {
		kept := entries[:0]
		for _, e := range entries {
			if pattern.MatchString(e.Raw) {
				kept = append(kept, e)
			}
		}
		if len(kept) > opts.lines {
			kept = kept[len(kept)-opts.lines:]
		}
		entries = kept
	}

	for _, e := range entries {
		line := e.Raw
		if !opts.raw {
			line = formatEntry(e)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatEntry(e logging.Entry) string {
	if e.Level == "" {
		return e.Raw
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %s", e.Time, levelName(e.Level), e.Msg)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

func levelName(level string) string {
	return logging.ParseLevel(level).String()
}
