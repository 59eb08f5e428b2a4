// Package index turns files into searchable vectors.
//
// Indexer.Process runs one file through extract → embed → vector table →
// catalog. Queue fans watcher events out to a fixed number of workers that
// each call Process.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/embed"
	"github.com/magicfolder/magicfolder/internal/extract"
	"github.com/magicfolder/magicfolder/internal/store"
)

const (
	// MessageProcessed is returned when a file was embedded and cataloged.
	MessageProcessed = "File processed successfully"
	// MessageSkipped is returned when there was nothing to index.
	MessageSkipped = "No text extracted or unsupported file type"
)

// Status is the non-error outcome of Process.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
)

// ProcessResult is the outcome of a successful Process call.
// ID and VectorKey are nil when the file was skipped.
type ProcessResult struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message"`
	Path      string  `json:"path"`
	ID        *int64  `json:"file_id"`
	VectorKey *string `json:"vector_id"`
}

// Dependencies are the components an Indexer orchestrates.
type Dependencies struct {
	Extractor extract.Extractor
	Embedder  embed.Embedder
	Vectors   store.VectorIndex
	Catalog   store.Catalog
}

// Indexer runs the indexing pipeline. It holds no state of its own and is
// safe for concurrent use.
type Indexer struct {
	extractor extract.Extractor
	embedder  embed.Embedder
	vectors   store.VectorIndex
	catalog   store.Catalog
}

// NewIndexer creates an Indexer. Every dependency is required.
func NewIndexer(deps Dependencies) (*Indexer, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	return &Indexer{
		extractor: deps.Extractor,
		embedder:  deps.Embedder,
		vectors:   deps.Vectors,
		catalog:   deps.Catalog,
	}, nil
}

// Process indexes one file.
//
// The path is made absolute and cleaned first; the result is both the
// catalog path and the vector key. A missing file fails with NotFound
// before any store is touched. An unsupported or empty file is Skipped.
// A catalog failure after the vector append leaves an orphaned vector row,
// which is logged and reported as a Storage error.
func (ix *Indexer) Process(ctx context.Context, filePath string) (*ProcessResult, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, mferrors.Validation(mferrors.ErrCodeInvalidInput, "file path must not be empty")
	}

	path, err := filepath.Abs(filePath)
	if err != nil {
		return nil, mferrors.IO(filePath, err)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, mferrors.NotFound(path)
	}
	if err != nil {
		return nil, mferrors.IO(path, err)
	}
	if info.IsDir() {
		return nil, mferrors.Validation(mferrors.ErrCodeInvalidInput, "path is a directory: "+path).
			WithDetail("path", path)
	}

	start := time.Now()

	text, err := ix.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	if text == "" {
		slog.Info("process_skipped", slog.String("path", path))
		return &ProcessResult{Status: StatusSkipped, Message: MessageSkipped, Path: path}, nil
	}

	vector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, mferrors.EnsureUpstream(err, "embedding failed").WithDetail("path", path)
	}

	key := path
	if err := ix.vectors.Upsert(ctx, key, vector); err != nil {
		return nil, mferrors.EnsureStorage(mferrors.ErrCodeVectorStore, "upsert vector", err).WithDetail("path", path)
	}

	id, err := ix.catalog.RecordProcessing(ctx, path, key)
	if err != nil {
		serr := mferrors.EnsureStorage(mferrors.ErrCodeCatalogStore, "record processing", err).
			WithDetail("path", path).
			WithDetail("orphan_key", key)
		slog.Error("process_orphaned_vector",
			append([]any{slog.String("key", key)}, mferrors.FormatForLog(serr)...)...)
		return nil, serr
	}

	slog.Info("process_completed",
		slog.String("path", path),
		slog.Int64("id", id),
		slog.Int("text_bytes", len(text)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return &ProcessResult{
		Status:    StatusProcessed,
		Message:   MessageProcessed,
		Path:      path,
		ID:        &id,
		VectorKey: &key,
	}, nil
}
