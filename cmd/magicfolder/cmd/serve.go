package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/magicfolder/magicfolder/internal/app"
	"github.com/magicfolder/magicfolder/internal/httpapi"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/mcp"
	"github.com/magicfolder/magicfolder/internal/output"
)

type serveOptions struct {
	transport string
	addr      string
	watchDir  string
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve processing and search to MCP clients or over HTTP",
		Long: `Start a long-running server over the index.

  stdio  MCP server on stdin/stdout (tools: process_file, search,
         file_info, index_status; cataloged files as resources)
  http   JSON API: GET /, POST /process_file, POST /search,
         GET /files, GET /files/info, GET /stats

In stdio mode nothing but protocol messages is written to stdout; logs go
to the log file only. --watch also keeps a directory indexed while serving.`,
		Example: `  magicfolder serve
  magicfolder serve --transport http --addr 127.0.0.1:8080
  magicfolder serve --watch ~/Documents`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport: stdio or http (default server.transport)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default server.addr)")
	cmd.Flags().StringVarP(&opts.watchDir, "watch", "w", "", "Also watch this directory while serving")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	transport := opts.transport
	if transport == "" {
		transport = cfg.Server.Transport
	}
	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	if transport == "stdio" {
		if err := g.setupLogging(false); err != nil {
			return err
		}
	}

	a, err := app.Open(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	if opts.watchDir != "" {
		root, err := filepath.Abs(opts.watchDir)
		if err != nil {
			return err
		}
		q := index.NewQueue(a.Indexer, cfg.Watch.QueueSize, cfg.Watch.Workers)
		defer q.Close()
		stopWatcher, err := startWatching(ctx, eg, a, q, root, false)
		if err != nil {
			return err
		}
		defer stopWatcher()
		slog.Info("serve_watching", slog.String("root", root))
	}

	eg.Go(func() error {
		// The watcher stops with the server, e.g. when stdin closes.
		defer cancel()
		if transport == "http" {
			return serveHTTP(ctx, cmd, g, a, addr)
		}
		return serveMCP(ctx, a)
	})

	return ignoreCanceled(eg.Wait())
}

func serveMCP(ctx context.Context, a *app.App) error {
	srv, err := mcp.NewServer(mcp.Dependencies{
		Indexer:  a.Indexer,
		Engine:   a.Engine,
		Catalog:  a.Catalog,
		Vectors:  a.Vectors,
		Embedder: a.Embedder,
		Queries:  a.Queries,
		Config:   a.Config,
	})
	if err != nil {
		return err
	}
	if err := srv.RegisterResources(ctx); err != nil {
		return err
	}
	return srv.Serve(ctx, "stdio")
}

func serveHTTP(ctx context.Context, cmd *cobra.Command, g *globalOptions, a *app.App, addr string) error {
	if !g.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := httpapi.New(httpapi.Dependencies{
		Indexer: a.Indexer,
		Engine:  a.Engine,
		Catalog: a.Catalog,
		Vectors: a.Vectors,
		Queries: a.Queries,
	})
	if err != nil {
		return err
	}
	output.New(cmd.OutOrStdout()).Statusf("🌐", "Listening on http://%s", addr)
	return srv.ListenAndServe(ctx, addr)
}
