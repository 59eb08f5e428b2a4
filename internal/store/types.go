// Package store provides the two durable stores behind the pipeline:
// an append-only columnar vector table and a SQLite file catalog.
//
// The stores are independent. FileRecord.VectorKey correlates to a table
// row key by value only, so a failed catalog write after a successful
// vector append leaves an orphaned row that nothing repairs automatically.
package store

import (
	"context"
	"time"
)

// Metric names a distance function.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity, computed on unit vectors.
	MetricCosine Metric = "cos"
	// MetricL2 is Euclidean distance.
	MetricL2 Metric = "l2"
)

// Hit is one nearest-neighbor result. Smaller Distance is more similar.
type Hit struct {
	Key      string
	Distance float32
}

// VectorIndex is a durable nearest-neighbor index over fixed-dimension vectors.
// Upsert appends; rows with the same key are never merged.
type VectorIndex interface {
	// Upsert appends a row. It fails with a dimension mismatch when
	// len(vector) differs from Dimension.
	Upsert(ctx context.Context, key string, vector []float32) error

	// Search returns at most topK hits in ascending distance order.
	// Ties keep insertion order. topK == 0 returns an empty slice.
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)

	Dimension() int
	Count() int
	CountKey(key string) int
	Close() error
}

// FileRecord is the catalog's per-path bookkeeping row.
type FileRecord struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	ProcessedAt time.Time `json:"processed_at"`
	VectorKey   string    `json:"vector_key"`
}

// Catalog is path-keyed bookkeeping. One row per path; reprocessing
// updates the row in place and keeps its ID.
type Catalog interface {
	RecordProcessing(ctx context.Context, path, vectorKey string) (int64, error)

	// GetByPath returns nil and no error when the path is unknown.
	GetByPath(ctx context.Context, path string) (*FileRecord, error)

	// List returns records ordered by ID. limit <= 0 means no limit.
	List(ctx context.Context, limit, offset int) ([]*FileRecord, error)

	Count(ctx context.Context) (int, error)
	VectorKeys(ctx context.Context) ([]string, error)
	Close() error
}

// VectorTableOptions tunes a VectorTable. Dimension is not an option:
// it is fixed by the first OpenVectorTable call.
type VectorTableOptions struct {
	Metric Metric

	// M and EfSearch configure the HNSW graph.
	M        int
	EfSearch int

	// FlatThreshold enables the HNSW graph once the table holds this many
	// rows. Graph search is approximate. 0 keeps every search an exact scan.
	FlatThreshold int

	// SyncWrites fsyncs both column files on every Upsert.
	SyncWrites bool

	// ReadOnly takes a shared lock and rejects Upsert.
	ReadOnly bool
}

// DefaultVectorTableOptions returns cosine distance with exact search.
func DefaultVectorTableOptions() VectorTableOptions {
	return VectorTableOptions{
		Metric:        MetricCosine,
		M:             16,
		EfSearch:      64,
		FlatThreshold: 0,
		SyncWrites:    true,
	}
}

// TableStats describes a vector table for inspection.
type TableStats struct {
	Collection   string `json:"collection"`
	Dimension    int    `json:"dimension"`
	Metric       Metric `json:"metric"`
	Rows         int    `json:"rows"`
	DistinctKeys int    `json:"distinct_keys"`
	DiskBytes    int64  `json:"disk_bytes"`
	GraphActive  bool   `json:"graph_active"`
}

// CatalogOptions tunes the SQLite catalog actor.
type CatalogOptions struct {
	// QueueSize bounds the number of pending catalog requests.
	QueueSize int

	BusyTimeoutMS int

	// Now stamps processed_at. Defaults to time.Now.
	Now func() time.Time
}

// DefaultCatalogOptions returns a 64-deep queue and a 5s busy timeout.
func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{
		QueueSize:     64,
		BusyTimeoutMS: 5000,
		Now:           time.Now,
	}
}
