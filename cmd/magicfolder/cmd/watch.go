package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/magicfolder/magicfolder/internal/app"
	"github.com/magicfolder/magicfolder/internal/ignore"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/output"
	"github.com/magicfolder/magicfolder/internal/ui"
	"github.com/magicfolder/magicfolder/internal/watcher"
)

const progressInterval = 100 * time.Millisecond

type watchOptions struct {
	scan bool
	once bool
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep a folder indexed as files change",
		Long: `Watch a directory tree and process every supported file that is
created or modified. Events are debounced per path (watch.debounce) and
processed by watch.workers workers.

Paths matched by the root's .gitignore or .magicfolderignore are skipped,
as are hidden directories. Deleted files stay in the index; their
entries are logged only.`,
		Example: `  magicfolder watch ~/Documents
  magicfolder watch . --scan
  magicfolder watch notes --once`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			if opts.once {
				opts.scan = true
			}
			return runWatch(cmd.Context(), cmd, g, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.scan, "scan", false, "Process existing files before watching")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Process existing files and exit without watching")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalOptions, root string, opts watchOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	a, err := g.openApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	cfg := a.Config
	out := output.New(cmd.OutOrStdout())
	q := index.NewQueue(a.Indexer, cfg.Watch.QueueSize, cfg.Watch.Workers)

	if opts.once {
		rules, err := ignore.Load(root)
		if err != nil {
			return err
		}
		return runOnce(ctx, cmd, g, a, q, root, rules)
	}

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", root)

	eg, ctx := errgroup.WithContext(ctx)
	stopWatcher, err := startWatching(ctx, eg, a, q, root, opts.scan)
	if err != nil {
		return err
	}
	defer stopWatcher()

	err = ignoreCanceled(eg.Wait())
	q.Close()
	out.Newline()
	printQueueStats(out, q.Stats())
	return err
}

// runOnce scans root, waits for the queue to drain and renders progress
// while doing so.
func runOnce(ctx context.Context, cmd *cobra.Command, g *globalOptions, a *app.App, q *index.Queue, root string, rules *ignore.Matcher) error {
	r := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithRoot(root), ui.WithForcePlain(g.debug)))
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = r.Stop() }()

	q.OnFailure(func(path string, err error) {
		r.AddError(ui.ErrorEvent{File: path, Err: err})
	})

	start := time.Now()
	scanned := make(chan struct{})
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return q.Run(ctx) })
	eg.Go(func() error {
		defer q.Close()
		defer close(scanned)
		return scanDir(ctx, root, q, accept(a, rules), rules, a.Config.Storage.DataDir)
	})
	eg.Go(func() error {
		reportProgress(ctx, r, q, scanned)
		return nil
	})
	err := eg.Wait()

	st := q.Stats()
	r.Complete(ui.CompletionStats{
		Processed: int(st.Processed),
		Skipped:   int(st.Skipped),
		Failed:    int(st.Failed),
		Duration:  time.Since(start),
		Model:     a.Embedder.ModelName(),
	})
	return ignoreCanceled(err)
}

// reportProgress polls the queue until the scan is over and every
// submitted path is done.
func reportProgress(ctx context.Context, r ui.Renderer, q *index.Queue, scanned <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	stage := ui.StageScanning
	for {
		st := q.Stats()
		r.UpdateProgress(ui.ProgressEvent{Stage: stage, Current: int(st.Done()), Total: int(st.Submitted)})
		if stage == ui.StageProcessing && st.Done() >= st.Submitted {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-scanned:
			stage = ui.StageProcessing
			scanned = nil
		case <-ticker.C:
		}
	}
}

// startWatching adds the queue workers, the watcher and the event
// forwarder to eg. The returned func releases the watcher.
func startWatching(ctx context.Context, eg *errgroup.Group, a *app.App, q *index.Queue, root string, scan bool) (func(), error) {
	rules, err := ignore.Load(root)
	if err != nil {
		return nil, err
	}
	if rules.Len() > 0 {
		slog.Info("ignore_rules_loaded", slog.String("root", root), slog.Int("rules", rules.Len()))
	}

	filter := accept(a, rules)
	dataDir := a.Config.Storage.DataDir
	w, err := watcher.New(watcher.Options{
		Debounce:   a.Config.Watch.Debounce,
		Filter:     filter,
		IgnoreDirs: []string{dataDir},
	})
	if err != nil {
		return nil, err
	}

	eg.Go(func() error { return q.Run(ctx) })
	eg.Go(func() error { return w.Start(ctx, root) })
	eg.Go(func() error { return forwardEvents(ctx, w, q) })
	if scan {
		eg.Go(func() error { return scanDir(ctx, root, q, filter, rules, dataDir) })
	}
	return func() { _ = w.Stop() }, nil
}

// accept reports whether a file is both extractable and not ignored.
func accept(a *app.App, rules *ignore.Matcher) func(string) bool {
	return func(path string) bool {
		return a.Extractor.CanHandle(path) && !rules.Ignored(path, false)
	}
}

// forwardEvents feeds watcher batches into the queue until either side
// stops.
func forwardEvents(ctx context.Context, w *watcher.Watcher, q *index.Queue) error {
	events, errs := w.Events(), w.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			if err := q.HandleEvents(ctx, batch); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// scanDir submits every file under root that accept allows. Hidden
// directories, ignored directories and skipDirs are not descended into.
func scanDir(ctx context.Context, root string, q *index.Queue, accept func(string) bool, rules *ignore.Matcher, skipDirs ...string) error {
	skip := make(map[string]bool, len(skipDirs))
	for _, dir := range skipDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = true
		}
	}

	submitted := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("scan_skip", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || skip[path] || rules.Ignored(path, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !accept(path) {
			return nil
		}
		if err := q.Submit(ctx, path); err != nil {
			return err
		}
		submitted++
		return nil
	})
	slog.Info("scan_completed", slog.String("root", root), slog.Int("submitted", submitted))
	return err
}

func printQueueStats(out *output.Writer, st index.QueueStats) {
	out.KeyValue("Processed", st.Processed)
	out.KeyValue("Skipped", st.Skipped)
	out.KeyValue("Failed", st.Failed)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
