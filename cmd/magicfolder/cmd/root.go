// Package cmd provides the CLI commands for MagicFolder.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/magicfolder/magicfolder/internal/app"
	"github.com/magicfolder/magicfolder/internal/config"
	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/logging"
	"github.com/magicfolder/magicfolder/internal/profiling"
	"github.com/magicfolder/magicfolder/pkg/version"
)

// globalOptions holds the persistent flags and the per-invocation state
// they start.
type globalOptions struct {
	dir      string
	dataDir  string
	logLevel string
	logFile  string
	debug    bool
	profile  profiling.Options

	session    *profiling.Session
	logCleanup func()
}

// NewRootCmd creates the root command for the magicfolder CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *globalOptions) {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "magicfolder",
		Short: "Semantic search over local files",
		Long: `MagicFolder indexes text files by meaning. Each processed file is
embedded with a local Ollama model, stored in a vector table and recorded
in a SQLite catalog. Queries return the closest files by distance.

Index files with 'magicfolder process' or keep a folder indexed with
'magicfolder watch'. Expose search to AI assistants with 'magicfolder serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("magicfolder version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.dir, "dir", "C", ".", "Directory holding .magicfolder.yaml and .env")
	pf.StringVar(&g.dataDir, "data-dir", "", "Override storage.data_dir")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFile, "log-file", "", "Log file (default ~/.magicfolder/logs/magicfolder.log)")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging and mirror logs to stderr")

	pf.StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = g.start
	cmd.PersistentPostRunE = g.stop

	cmd.AddCommand(newProcessCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newFilesCmd(g))
	cmd.AddCommand(newInfoCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd, g
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	cmd, g := newRoot()
	err := cmd.Execute()
	// PersistentPostRunE is skipped when RunE fails.
	_ = g.stop(cmd, nil)
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

func printError(w io.Writer, err error) {
	if _, ok := mferrors.As(err); ok {
		_, _ = fmt.Fprint(w, mferrors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

// start installs the logger and begins profiling.
func (g *globalOptions) start(_ *cobra.Command, _ []string) error {
	if err := g.setupLogging(g.debug); err != nil {
		return err
	}

	if g.profile.Enabled() {
		s, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.session = s
	}
	return nil
}

// stop ends profiling and flushes the log file. Safe to call twice.
func (g *globalOptions) stop(_ *cobra.Command, _ []string) error {
	var err error
	if g.session != nil {
		err = g.session.Stop()
		g.session = nil
	}
	if g.logCleanup != nil {
		g.logCleanup()
		g.logCleanup = nil
	}
	return err
}

// setupLogging (re)installs the default logger. stderr must stay false
// while stdout carries the MCP protocol.
func (g *globalOptions) setupLogging(stderr bool) error {
	if g.logCleanup != nil {
		g.logCleanup()
		g.logCleanup = nil
	}

	cfg := logging.DefaultConfig()
	cfg.Level = g.logLevel
	if g.debug {
		cfg.Level = "debug"
	}
	if g.logFile != "" {
		cfg.FilePath = g.logFile
	}
	cfg.WriteToStderr = stderr

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	g.logCleanup = cleanup
	slog.Debug("logging_started", slog.String("file", cfg.FilePath), slog.String("version", version.Version))
	return nil
}

// loadConfig loads configuration for --dir and applies --data-dir.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return nil, mferrors.Config("failed to load configuration", err).
			WithSuggestion("Run 'magicfolder config show' to inspect the effective settings")
	}
	if g.dataDir != "" {
		cfg.Storage.DataDir = g.dataDir
	}
	return cfg, nil
}

// openApp loads configuration and opens both stores.
func (g *globalOptions) openApp(readOnly bool) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, app.Options{ReadOnly: readOnly})
}
