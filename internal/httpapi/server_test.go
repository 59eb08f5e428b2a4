package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicfolder/magicfolder/internal/config"
	"github.com/magicfolder/magicfolder/internal/embed"
	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/extract"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/search"
	"github.com/magicfolder/magicfolder/internal/store"
	"github.com/magicfolder/magicfolder/internal/telemetry"
)

const testDims = 32

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	handler http.Handler
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	opts := store.DefaultVectorTableOptions()
	opts.SyncWrites = false
	vectors, err := store.OpenVectorTable(filepath.Join(dir, "vectors"), "files", testDims, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	catalog, err := store.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"), store.DefaultCatalogOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	emb := embed.NewStaticEmbedder(testDims)
	indexer, err := index.NewIndexer(index.Dependencies{
		Extractor: extract.New(config.NewConfig().Extract),
		Embedder:  emb,
		Vectors:   vectors,
		Catalog:   catalog,
	})
	require.NoError(t, err)
	queries := telemetry.NewQueryMetrics()
	engine, err := search.NewEngine(emb, vectors, search.WithRecorder(queries))
	require.NoError(t, err)

	srv, err := New(Dependencies{Indexer: indexer, Engine: engine, Catalog: catalog, Vectors: vectors, Queries: queries})
	require.NoError(t, err)

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	return &fixture{handler: srv.Handler(), dir: docs}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Kind    string            `json:"kind"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RootMessage, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestProcessFileThenSearch(t *testing.T) {
	// Given: two processed files
	f := newFixture(t)
	garden := f.write(t, "garden.txt", "tomatoes need full sun and regular watering")
	f.write(t, "engine.md", "the turbocharger compresses intake air")

	for _, name := range []string{"garden.txt", "engine.md"} {
		rec := f.do(t, http.MethodPost, "/process_file", ProcessFileRequest{FilePath: filepath.Join(f.dir, name)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[index.ProcessResult](t, rec)
		assert.Equal(t, index.MessageProcessed, res.Message)
		require.NotNil(t, res.ID)
		require.NotNil(t, res.VectorKey)
	}

	// When: searching with the garden text
	rec := f.do(t, http.MethodPost, "/search", map[string]any{
		"query": "tomatoes need full sun and regular watering",
		"top_k": 2,
	})

	// Then: a JSON array with the garden file first
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]search.Result](t, rec)
	require.Len(t, results, 2)
	assert.Equal(t, garden, results[0].Path)
	assert.Less(t, results[0].Score, results[1].Score)
}

func TestProcessFile_SkippedWireFormat(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "photo.jpg", "binary")

	rec := f.do(t, http.MethodPost, "/process_file", ProcessFileRequest{FilePath: p})

	require.Equal(t, http.StatusOK, rec.Code)
	raw := decode[map[string]any](t, rec)
	assert.Equal(t, index.MessageSkipped, raw["message"])
	assert.Equal(t, "skipped", raw["status"])
	assert.Nil(t, raw["file_id"])
	assert.Nil(t, raw["vector_id"])
}

func TestProcessFile_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"missing file", ProcessFileRequest{FilePath: filepath.Join(f.dir, "nope.txt")}, http.StatusNotFound, "not_found"},
		{"empty path", ProcessFileRequest{}, http.StatusBadRequest, "validation"},
		{"directory", ProcessFileRequest{FilePath: f.dir}, http.StatusBadRequest, "validation"},
		{"malformed body", "{not json", http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/process_file", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.kind, body.Error.Kind)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/search", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, mferrors.ErrCodeQueryEmpty, decode[errorBody](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, "/search", map[string]any{"query": "x", "top_k": -2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/search", map[string]any{"query": "x", "top_k": 0})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestFiles_ListAndInfo(t *testing.T) {
	// Given: three processed files, one processed twice
	f := newFixture(t)
	var paths []string
	for i := 0; i < 3; i++ {
		p := f.write(t, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("document number %d", i))
		paths = append(paths, p)
		rec := f.do(t, http.MethodPost, "/process_file", ProcessFileRequest{FilePath: p})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/process_file", ProcessFileRequest{FilePath: paths[0]})
	require.Equal(t, http.StatusOK, rec.Code)

	// When/Then: listing pages through catalog rows in id order
	rec = f.do(t, http.MethodGet, "/files?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]store.FileRecord](t, rec)
	require.Len(t, page, 2)
	assert.Equal(t, paths[1], page[0].Path)
	assert.Equal(t, paths[2], page[1].Path)

	rec = f.do(t, http.MethodGet, "/files", nil)
	assert.Len(t, decode[[]store.FileRecord](t, rec), 3)

	// When/Then: info reports the duplicate rows for the reprocessed file
	rec = f.do(t, http.MethodGet, "/files/info?path="+url.QueryEscape(paths[0]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[map[string]any](t, rec)
	assert.Equal(t, paths[0], info["path"])
	assert.Equal(t, float64(2), info["vector_rows"])
}

func TestFiles_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/files/info", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/files/info?path="+url.QueryEscape(filepath.Join(f.dir, "x.txt")), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/files?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	// Given: one processed file and two searches, one without results
	f := newFixture(t)
	p := f.write(t, "a.txt", "alpha")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/process_file", ProcessFileRequest{FilePath: p}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/search", `{"query":"alpha"}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/search", `{"query":"alpha","top_k":0}`).Code)

	// When: reading stats
	rec := f.do(t, http.MethodGet, "/stats", nil)

	// Then: both stores and the query counters are reported
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.VectorRows)
	require.NotNil(t, stats.Queries)
	assert.EqualValues(t, 2, stats.Queries.TotalQueries)
	assert.EqualValues(t, 1, stats.Queries.ZeroResultCount)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{mferrors.NotFound("/a"), http.StatusNotFound},
		{mferrors.Validation(mferrors.ErrCodeInvalidInput, "x"), http.StatusBadRequest},
		{mferrors.Upstream(mferrors.ErrCodeUpstreamStatus, "x", nil), http.StatusBadGateway},
		{mferrors.DimensionMismatch(3, 4), http.StatusConflict},
		{mferrors.SchemaMismatch("files", 3, 4), http.StatusConflict},
		{mferrors.Storage(mferrors.ErrCodeVectorStore, "upsert vector", mferrors.DimensionMismatch(3, 4)), http.StatusConflict},
		{mferrors.Storage(mferrors.ErrCodeVectorStore, "x", nil), http.StatusInternalServerError},
		{mferrors.Storage(mferrors.ErrCodeStoreLocked, "x", nil), http.StatusServiceUnavailable},
		{mferrors.IO("/a", nil), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}
