package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

// VectorTable is a directory-backed columnar table of (key, vector) rows.
//
// Layout under <storagePath>/<collection>.table/:
//
//	schema.yaml   dimension, metric and column types
//	path.col      key column
//	vector.col    vector column
//	.lock         cross-process lock
//
// Rows are only ever appended. Readers and writers share an RWMutex, so a
// Search racing an Upsert sees the table either before or after the row.
type VectorTable struct {
	mu sync.RWMutex

	dir    string
	schema TableSchema
	opts   VectorTableOptions
	dist   hnsw.DistanceFunc

	keys    []string
	vectors [][]float32 // normalized when the metric is cosine
	graph   *annGraph   // nil unless enabled and the table reaches FlatThreshold rows

	keyCol *columnFile
	vecCol *columnFile
	lock   *DirLock

	closed bool
}

var _ VectorIndex = (*VectorTable)(nil)

// TableDir returns the directory holding a collection's table.
func TableDir(storagePath, collection string) string {
	return filepath.Join(storagePath, collection+".table")
}

// TableExists reports whether a collection has been initialized.
func TableExists(storagePath, collection string) bool {
	_, err := os.Stat(filepath.Join(TableDir(storagePath, collection), schemaFile))
	return err == nil
}

// OpenVectorTable initializes the collection's table if absent and opens it.
// Opening an existing table with a different dimension fails with a schema
// mismatch; the stored metric wins over opts.Metric.
func OpenVectorTable(storagePath, collection string, dimension int, opts VectorTableOptions) (*VectorTable, error) {
	if dimension <= 0 {
		return nil, mferrors.Validation(mferrors.ErrCodeInvalidInput,
			fmt.Sprintf("dimension must be positive, got %d", dimension))
	}
	applyTableDefaults(&opts)

	dir := TableDir(storagePath, collection)
	if !opts.ReadOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, vectorErr("create table directory", err).WithDetail("dir", dir)
		}
	}

	lock := NewDirLock(dir)
	acquire := lock.TryLock
	if opts.ReadOnly {
		acquire = lock.TryRLock
	}
	ok, err := acquire()
	if err != nil {
		return nil, vectorErr("lock table", err).WithDetail("dir", dir)
	}
	if !ok {
		return nil, mferrors.New(mferrors.ErrCodeStoreLocked, "vector table is in use by another process", nil).
			WithDetail("dir", dir).
			WithSuggestion("Stop the other magicfolder process (watch or serve) or use --read-only commands")
	}

	t, err := openLocked(dir, collection, dimension, opts)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	t.lock = lock

	slog.Info("vector_table_opened",
		slog.String("dir", dir),
		slog.Int("dimension", t.schema.Dimension),
		slog.String("metric", string(t.schema.Metric)),
		slog.Int("rows", len(t.keys)),
		slog.Bool("read_only", opts.ReadOnly))
	return t, nil
}

func applyTableDefaults(opts *VectorTableOptions) {
	def := DefaultVectorTableOptions()
	if opts.Metric == "" {
		opts.Metric = def.Metric
	}
	if opts.M <= 0 {
		opts.M = def.M
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = def.EfSearch
	}
	if opts.FlatThreshold < 0 {
		opts.FlatThreshold = def.FlatThreshold
	}
}

func openLocked(dir, collection string, dimension int, opts VectorTableOptions) (*VectorTable, error) {
	schema, exists, err := readSchema(dir)
	if err != nil {
		return nil, vectorErr("read schema", err).WithDetail("dir", dir)
	}

	switch {
	case !exists && opts.ReadOnly:
		return nil, vectorErr("open table", os.ErrNotExist).WithDetail("dir", dir)
	case !exists:
		schema = newTableSchema(collection, dimension, opts.Metric)
		if err := writeSchema(dir, schema); err != nil {
			return nil, vectorErr("write schema", err).WithDetail("dir", dir)
		}
		slog.Info("vector_table_created",
			slog.String("collection", collection),
			slog.Int("dimension", dimension),
			slog.String("metric", string(opts.Metric)))
	case schema.Dimension != dimension:
		return nil, mferrors.SchemaMismatch(collection, schema.Dimension, dimension).WithDetail("dir", dir)
	case schema.Metric != opts.Metric:
		slog.Warn("vector_table_metric_override",
			slog.String("configured", string(opts.Metric)),
			slog.String("stored", string(schema.Metric)))
	}
	opts.Metric = schema.Metric

	t := &VectorTable{
		dir:    dir,
		schema: schema,
		opts:   opts,
		dist:   distanceFunc(schema.Metric),
	}
	if err := t.load(); err != nil {
		t.closeFiles()
		return nil, err
	}
	return t, nil
}

// load reads both columns, truncating any torn tail to the last complete row.
func (t *VectorTable) load() error {
	var err error
	if t.keyCol, err = openColumnFile(filepath.Join(t.dir, keyColumnFile), t.opts.ReadOnly); err != nil {
		return vectorErr("open key column", err)
	}
	if t.vecCol, err = openColumnFile(filepath.Join(t.dir, vectorColumnFile), t.opts.ReadOnly); err != nil {
		return vectorErr("open vector column", err)
	}

	keys, ends, err := readKeyColumn(t.keyCol.f)
	if err != nil {
		return vectorErr("read key column", err)
	}

	rowBytes := int64(4 * t.schema.Dimension)
	rows := len(keys)
	if vecRows := int(t.vecCol.size / rowBytes); vecRows < rows {
		rows = vecRows
	}

	var keyEnd int64
	if rows > 0 {
		keyEnd = ends[rows-1]
	}
	if keyEnd != t.keyCol.size || int64(rows)*rowBytes != t.vecCol.size {
		slog.Warn("vector_table_torn_tail",
			slog.String("dir", t.dir),
			slog.Int("rows", rows),
			slog.Int64("key_bytes", t.keyCol.size),
			slog.Int64("vector_bytes", t.vecCol.size))
		if !t.opts.ReadOnly {
			if err := t.keyCol.truncate(keyEnd); err != nil {
				return vectorErr("truncate key column", err)
			}
			if err := t.vecCol.truncate(int64(rows) * rowBytes); err != nil {
				return vectorErr("truncate vector column", err)
			}
		}
	}

	if _, err := t.vecCol.f.Seek(0, 0); err != nil {
		return vectorErr("seek vector column", err)
	}
	vectors, err := readVectorColumn(t.vecCol.f, rows, t.schema.Dimension)
	if err != nil {
		return vectorErr("read vector column", err)
	}

	t.keys = keys[:rows]
	t.vectors = vectors
	for _, v := range t.vectors {
		t.prepare(v)
	}
	if t.graphEnabled() && len(t.vectors) >= t.opts.FlatThreshold {
		t.buildGraph()
	}
	return nil
}

// prepare converts a stored vector into its in-memory search form.
func (t *VectorTable) prepare(v []float32) {
	if t.schema.Metric == MetricCosine {
		normalizeVectorInPlace(v)
	}
}

func (t *VectorTable) graphEnabled() bool {
	return t.opts.FlatThreshold > 0
}

func (t *VectorTable) buildGraph() {
	t.graph = newANNGraph(t.opts, t.dist)
	for i, v := range t.vectors {
		t.graph.add(uint64(i), v)
	}
	slog.Debug("vector_table_graph_built", slog.Int("nodes", t.graph.len()))
}

// Upsert appends a row. The vector column is written before the key column,
// so a crash between the two leaves a torn tail that the next open drops.
func (t *VectorTable) Upsert(ctx context.Context, key string, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return vectorErr("upsert", err)
	}
	if key == "" {
		return mferrors.Validation(mferrors.ErrCodeInvalidInput, "vector key must not be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return closedErr()
	}
	if t.opts.ReadOnly {
		return vectorErr("upsert", fmt.Errorf("table opened read-only"))
	}
	if len(vector) != t.schema.Dimension {
		return mferrors.DimensionMismatch(t.schema.Dimension, len(vector))
	}

	vecStart := t.vecCol.size
	if err := t.vecCol.append(encodeVector(vector), t.opts.SyncWrites); err != nil {
		return vectorErr("append vector", err).WithDetail("key", key)
	}
	if err := t.keyCol.append(encodeKey(key), t.opts.SyncWrites); err != nil {
		_ = t.vecCol.truncate(vecStart)
		return vectorErr("append key", err).WithDetail("key", key)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	t.prepare(vec)

	row := uint64(len(t.vectors))
	t.keys = append(t.keys, key)
	t.vectors = append(t.vectors, vec)

	switch {
	case t.graph != nil:
		t.graph.add(row, vec)
	case t.graphEnabled() && len(t.vectors) >= t.opts.FlatThreshold:
		t.buildGraph()
	}
	return nil
}

// Search returns the topK nearest rows. Without a graph, or when topK
// exceeds EfSearch, every row is scanned and the result is exact.
func (t *VectorTable) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, vectorErr("search", err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, closedErr()
	}
	if len(query) != t.schema.Dimension {
		return nil, mferrors.DimensionMismatch(t.schema.Dimension, len(query))
	}
	if topK < 0 {
		return nil, mferrors.Validation(mferrors.ErrCodeInvalidInput,
			fmt.Sprintf("topK must be non-negative, got %d", topK))
	}
	if topK == 0 || len(t.vectors) == 0 {
		return []Hit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	t.prepare(q)

	var rows []uint64
	if t.graph != nil && t.graph.canServe(topK) {
		rows = t.graph.candidates(q, topK)
	} else {
		rows = make([]uint64, len(t.vectors))
		for i := range rows {
			rows[i] = uint64(i)
		}
	}

	type scored struct {
		row  uint64
		dist float32
	}
	cands := make([]scored, len(rows))
	for i, r := range rows {
		cands[i] = scored{row: r, dist: t.dist(q, t.vectors[r])}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].row < cands[j].row
	})

	if len(cands) > topK {
		cands = cands[:topK]
	}
	hits := make([]Hit, len(cands))
	for i, c := range cands {
		hits[i] = Hit{Key: t.keys[c.row], Distance: c.dist}
	}
	return hits, nil
}

// Dimension returns the schema dimension.
func (t *VectorTable) Dimension() int {
	return t.schema.Dimension
}

// Schema returns the table manifest.
func (t *VectorTable) Schema() TableSchema {
	return t.schema
}

// Count returns the number of rows, duplicates included.
func (t *VectorTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// CountKey returns how many rows carry key.
func (t *VectorTable) CountKey(key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, k := range t.keys {
		if k == key {
			n++
		}
	}
	return n
}

// KeyCounts returns the row count per distinct key.
func (t *VectorTable) KeyCounts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int, len(t.keys))
	for _, k := range t.keys {
		counts[k]++
	}
	return counts
}

// Stats summarizes the table for inspection.
func (t *VectorTable) Stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	distinct := make(map[string]struct{}, len(t.keys))
	for _, k := range t.keys {
		distinct[k] = struct{}{}
	}

	var disk int64
	if t.keyCol != nil && t.vecCol != nil {
		disk = t.keyCol.size + t.vecCol.size
	}
	return TableStats{
		Collection:   t.schema.Collection,
		Dimension:    t.schema.Dimension,
		Metric:       t.schema.Metric,
		Rows:         len(t.keys),
		DistinctKeys: len(distinct),
		DiskBytes:    disk,
		GraphActive:  t.graph != nil,
	}
}

// Close releases the files and the directory lock.
func (t *VectorTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.graph = nil

	t.closeFiles()
	if t.lock != nil {
		return t.lock.Unlock()
	}
	return nil
}

func (t *VectorTable) closeFiles() {
	for _, c := range []*columnFile{t.keyCol, t.vecCol} {
		if c == nil {
			continue
		}
		if err := c.close(); err != nil {
			slog.Warn("vector_table_close_failed", slog.String("error", err.Error()))
		}
	}
}

func vectorErr(op string, cause error) *mferrors.Error {
	return mferrors.Storage(mferrors.ErrCodeVectorStore, op, cause).WithDetail("store", "vector")
}

func closedErr() *mferrors.Error {
	return mferrors.New(mferrors.ErrCodeStoreClosed, "store is closed", nil)
}
