// Package app assembles the stores and pipelines from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magicfolder/magicfolder/internal/config"
	"github.com/magicfolder/magicfolder/internal/embed"
	"github.com/magicfolder/magicfolder/internal/extract"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/search"
	"github.com/magicfolder/magicfolder/internal/store"
	"github.com/magicfolder/magicfolder/internal/telemetry"
)

// Options controls how the stores are opened.
type Options struct {
	// ReadOnly opens the vector table under a shared lock so it can be
	// shared with a running watch or serve. Process fails. A table that
	// does not exist yet is created writable instead.
	ReadOnly bool
}

// App owns every long-lived component. Close releases them in reverse
// order of construction.
type App struct {
	Config    *config.Config
	Extractor *extract.TextExtractor
	Embedder  embed.Embedder
	Vectors   *store.VectorTable
	Catalog   *store.SQLiteCatalog
	Indexer   *index.Indexer
	Engine    *search.Engine
	Queries   *telemetry.QueryMetrics
}

// Status is a point-in-time view of both stores.
type Status struct {
	Table         store.TableStats   `json:"table"`
	CatalogPath   string             `json:"catalog_path"`
	Files         int                `json:"files"`
	CatalogQueue  int                `json:"catalog_queue"`
	QueueCapacity int                `json:"catalog_queue_capacity"`
	Consistency   *index.CheckResult `json:"consistency"`
}

// VectorTableOptions maps the index section of cfg onto table options.
func VectorTableOptions(cfg *config.Config, readOnly bool) store.VectorTableOptions {
	return store.VectorTableOptions{
		Metric:        store.Metric(cfg.Index.Metric),
		M:             cfg.Index.M,
		EfSearch:      cfg.Index.EfSearch,
		FlatThreshold: cfg.Index.FlatThreshold,
		SyncWrites:    cfg.Index.SyncWrites,
		ReadOnly:      readOnly,
	}
}

// Open builds the full component graph. On failure everything opened so
// far is closed.
func Open(cfg *config.Config, opts Options) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	a := &App{Config: cfg, Extractor: extract.New(cfg.Extract)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Embedder, err = embed.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	readOnly := opts.ReadOnly && store.TableExists(cfg.VectorPath(), cfg.Storage.Collection)
	a.Vectors, err = store.OpenVectorTable(cfg.VectorPath(), cfg.Storage.Collection,
		cfg.Embeddings.Dimensions, VectorTableOptions(cfg, readOnly))
	if err != nil {
		return nil, err
	}

	catOpts := store.DefaultCatalogOptions()
	catOpts.QueueSize = cfg.Catalog.QueueSize
	catOpts.BusyTimeoutMS = cfg.Catalog.BusyTimeoutMS
	a.Catalog, err = store.NewSQLiteCatalog(cfg.CatalogPath(), catOpts)
	if err != nil {
		return nil, err
	}

	a.Indexer, err = index.NewIndexer(index.Dependencies{
		Extractor: a.Extractor,
		Embedder:  a.Embedder,
		Vectors:   a.Vectors,
		Catalog:   a.Catalog,
	})
	if err != nil {
		return nil, err
	}

	a.Queries = telemetry.NewQueryMetrics()
	a.Engine, err = search.NewEngine(a.Embedder, a.Vectors,
		search.WithDefaultTopK(cfg.Search.DefaultTopK),
		search.WithRecorder(a.Queries))
	if err != nil {
		return nil, err
	}

	slog.Debug("app_opened",
		slog.String("provider", cfg.Embeddings.Provider),
		slog.String("model", a.Embedder.ModelName()),
		slog.Bool("read_only", readOnly))
	return a, nil
}

// Status gathers table statistics, the catalog row count and a
// consistency report.
func (a *App) Status(ctx context.Context) (*Status, error) {
	files, err := a.Catalog.Count(ctx)
	if err != nil {
		return nil, err
	}
	report, err := index.NewConsistencyChecker(a.Catalog, a.Vectors).Check(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Table:         a.Vectors.Stats(),
		CatalogPath:   a.Catalog.Path(),
		Files:         files,
		CatalogQueue:  a.Catalog.Pending(),
		QueueCapacity: a.Catalog.QueueCapacity(),
		Consistency:   report,
	}, nil
}

// Close releases the catalog, the vector table and the embedder.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	if a.Vectors != nil {
		errs = append(errs, a.Vectors.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	return errors.Join(errs...)
}
