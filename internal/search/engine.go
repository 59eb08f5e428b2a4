// Package search answers natural-language queries against the vector table.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magicfolder/magicfolder/internal/embed"
	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/store"
)

// DefaultTopK is used when the caller does not choose a result count.
const DefaultTopK = 5

// Result is one ranked file. Score is the raw index distance: smaller is
// more similar.
type Result struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithDefaultTopK overrides DefaultTopK for SearchDefault.
func WithDefaultTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.defaultTopK = k
		}
	}
}

// QueryRecorder observes completed searches. *telemetry.QueryMetrics
// implements it.
type QueryRecorder interface {
	RecordQuery(query string, results int, latency time.Duration)
}

// WithRecorder reports every successful search to r.
func WithRecorder(r QueryRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// Engine embeds a query and asks the vector index for its nearest keys.
type Engine struct {
	embedder    embed.Embedder
	vectors     store.VectorIndex
	defaultTopK int
	recorder    QueryRecorder
}

// NewEngine creates a search engine.
func NewEngine(embedder embed.Embedder, vectors store.VectorIndex, opts ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector index", ErrNilDependency)
	}
	e := &Engine{embedder: embedder, vectors: vectors, defaultTopK: DefaultTopK}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DefaultTopK returns the count SearchDefault uses.
func (e *Engine) DefaultTopK() int {
	return e.defaultTopK
}

// SearchDefault runs Search with the engine's default top-K.
func (e *Engine) SearchDefault(ctx context.Context, query string) ([]Result, error) {
	return e.Search(ctx, query, e.defaultTopK)
}

// Search returns at most topK files ordered by ascending distance.
// Duplicate rows for one file may appear more than once. topK == 0 still
// embeds the query and then returns an empty slice.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, mferrors.Validation(mferrors.ErrCodeQueryEmpty, "query must not be empty")
	}
	if topK < 0 {
		return nil, mferrors.Validation(mferrors.ErrCodeInvalidInput,
			fmt.Sprintf("top_k must be non-negative, got %d", topK))
	}

	start := time.Now()

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, mferrors.EnsureUpstream(err, "query embedding failed")
	}

	hits, err := e.vectors.Search(ctx, vector, topK)
	if err != nil {
		return nil, mferrors.EnsureStorage(mferrors.ErrCodeVectorStore, "vector search", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Path: h.Key, Score: h.Distance}
	}

	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.RecordQuery(query, len(results), elapsed)
	}

	slog.Debug("search_completed",
		slog.Int("query_len", len(query)),
		slog.Int("top_k", topK),
		slog.Int("results", len(results)),
		slog.Int64("duration_ms", elapsed.Milliseconds()))

	return results, nil
}
