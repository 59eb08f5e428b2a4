package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

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

type fixture struct {
	srv     *Server
	dir     string
	catalog *store.SQLiteCatalog
	vectors *store.VectorTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"

	opts := store.DefaultVectorTableOptions()
	opts.SyncWrites = false
	vectors, err := store.OpenVectorTable(filepath.Join(dir, "vectors"), "files", testDims, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	catalog, err := store.NewSQLiteCatalog("", store.DefaultCatalogOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	emb := embed.NewStaticEmbedder(testDims)
	indexer, err := index.NewIndexer(index.Dependencies{
		Extractor: extract.New(cfg.Extract),
		Embedder:  emb,
		Vectors:   vectors,
		Catalog:   catalog,
	})
	require.NoError(t, err)
	queries := telemetry.NewQueryMetrics()
	engine, err := search.NewEngine(emb, vectors, search.WithRecorder(queries))
	require.NoError(t, err)

	srv, err := NewServer(Dependencies{
		Indexer:  indexer,
		Engine:   engine,
		Catalog:  catalog,
		Vectors:  vectors,
		Embedder: emb,
		Queries:  queries,
		Config:   cfg,
	})
	require.NoError(t, err)

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	return &fixture{srv: srv, dir: docs, catalog: catalog, vectors: vectors}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

type stubProcessor struct{ err error }

func (p stubProcessor) Process(context.Context, string) (*index.ProcessResult, error) {
	return nil, p.err
}

type stubSearcher struct{}

func (stubSearcher) Search(context.Context, string, int) ([]search.Result, error) {
	return []search.Result{}, nil
}
func (stubSearcher) DefaultTopK() int { return 5 }

func TestNewServer_RequiresDependencies(t *testing.T) {
	catalog, err := store.NewSQLiteCatalog("", store.DefaultCatalogOptions())
	require.NoError(t, err)
	defer catalog.Close()

	_, err = NewServer(Dependencies{Engine: stubSearcher{}, Catalog: catalog})
	assert.Error(t, err)
	_, err = NewServer(Dependencies{Indexer: stubProcessor{}, Catalog: catalog})
	assert.Error(t, err)
	_, err = NewServer(Dependencies{Indexer: stubProcessor{}, Engine: stubSearcher{}})
	assert.Error(t, err)

	srv, err := NewServer(Dependencies{Indexer: stubProcessor{}, Engine: stubSearcher{}, Catalog: catalog})
	require.NoError(t, err)
	assert.NotNil(t, srv.MCPServer())
	name, _ := srv.Info()
	assert.Equal(t, ServerName, name)
}

func TestServer_ListTools(t *testing.T) {
	f := newFixture(t)
	names := []string{}
	for _, tool := range f.srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"process_file", "search", "file_info", "index_status"}, names)
}

func TestServer_ProcessThenSearch(t *testing.T) {
	// Given: two indexed text files
	f := newFixture(t)
	recipe := f.write(t, "recipe.txt", "sourdough bread needs flour water salt and patience")
	f.write(t, "cluster.md", "kubernetes schedules pods onto worker nodes")

	for _, name := range []string{"recipe.txt", "cluster.md"} {
		out, err := f.srv.CallTool(context.Background(), "process_file", map[string]any{
			"file_path": filepath.Join(f.dir, name),
		})
		require.NoError(t, err)
		res := out.(ProcessFileOutput)
		assert.Equal(t, "processed", res.Status)
		assert.Equal(t, index.MessageProcessed, res.Message)
		require.NotNil(t, res.FileID)
		require.NotNil(t, res.VectorID)
	}

	// When: searching with the recipe's own text
	out, err := f.srv.CallTool(context.Background(), "search", map[string]any{
		"query": "sourdough bread needs flour water salt and patience",
		"top_k": 1,
	})

	// Then: the markdown lists the recipe first
	require.NoError(t, err)
	md := out.(string)
	assert.Contains(t, md, "Found 1 result\n")
	assert.Contains(t, md, "1. `"+recipe+"`")
}

func TestServer_ProcessSkipped(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "image.png", "\x89PNG")

	out, err := f.srv.CallTool(context.Background(), "process_file", map[string]any{"file_path": p})

	require.NoError(t, err)
	res := out.(ProcessFileOutput)
	assert.Equal(t, "skipped", res.Status)
	assert.Nil(t, res.FileID)
	assert.Nil(t, res.VectorID)
	assert.Empty(t, f.srv.ResourceURIs())
}

func TestServer_ProcessErrorsMapByKind(t *testing.T) {
	catalog, err := store.NewSQLiteCatalog("", store.DefaultCatalogOptions())
	require.NoError(t, err)
	defer catalog.Close()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", mferrors.NotFound("/missing.txt"), ErrCodeFileNotFound},
		{"upstream", mferrors.Upstream(mferrors.ErrCodeUpstreamStatus, "ollama returned 500", nil), ErrCodeUpstream},
		{"dimension", mferrors.DimensionMismatch(1024, 768), ErrCodeDimensionMismatch},
		{"wrapped dimension", mferrors.Storage(mferrors.ErrCodeVectorStore, "upsert vector", mferrors.DimensionMismatch(1024, 768)), ErrCodeDimensionMismatch},
		{"storage", mferrors.Storage(mferrors.ErrCodeCatalogStore, "record", nil), ErrCodeStorage},
		{"validation", mferrors.Validation(mferrors.ErrCodeInvalidInput, "bad"), ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewServer(Dependencies{Indexer: stubProcessor{err: tt.err}, Engine: stubSearcher{}, Catalog: catalog})
			require.NoError(t, err)

			_, err = srv.CallTool(context.Background(), "process_file", map[string]any{"file_path": "/x.txt"})

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestServer_InvalidParams(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		tool string
		args map[string]any
	}{
		{"process_file", map[string]any{}},
		{"search", map[string]any{}},
		{"search", map[string]any{"query": "   "}},
		{"search", map[string]any{"query": "x", "top_k": -1}},
		{"search", map[string]any{"query": 42}},
		{"file_info", map[string]any{"path": ""}},
	}
	for _, tt := range tests {
		_, err := f.srv.CallTool(context.Background(), tt.tool, tt.args)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr, "%s %v", tt.tool, tt.args)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code, "%s %v", tt.tool, tt.args)
	}
}

func TestServer_UnknownTool(t *testing.T) {
	f := newFixture(t)
	_, err := f.srv.CallTool(context.Background(), "delete_everything", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_FileInfo(t *testing.T) {
	// Given: a file processed twice
	f := newFixture(t)
	p := f.write(t, "notes.txt", "first draft of the notes")
	_, err := f.srv.CallTool(context.Background(), "process_file", map[string]any{"file_path": p})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("second draft of the notes"), 0o644))
	_, err = f.srv.CallTool(context.Background(), "process_file", map[string]any{"file_path": p})
	require.NoError(t, err)

	// When: asking for its catalog entry
	out, err := f.srv.CallTool(context.Background(), "file_info", map[string]any{"path": p})

	// Then: one catalog row backed by two vector rows
	require.NoError(t, err)
	info := out.(FileInfoOutput)
	assert.Equal(t, p, info.Path)
	assert.Equal(t, p, info.VectorID)
	assert.Equal(t, 2, info.VectorRows)
	assert.NotEmpty(t, info.ProcessedAt)

	_, err = f.srv.CallTool(context.Background(), "file_info", map[string]any{"path": filepath.Join(f.dir, "other.txt")})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

func TestServer_IndexStatus(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "a.txt", "alpha content")
	_, err := f.srv.CallTool(context.Background(), "process_file", map[string]any{"file_path": p})
	require.NoError(t, err)
	_, err = f.srv.CallTool(context.Background(), "search", map[string]any{"query": "alpha content"})
	require.NoError(t, err)

	out, err := f.srv.CallTool(context.Background(), "index_status", nil)

	require.NoError(t, err)
	status := out.(*IndexStatusOutput)
	assert.Equal(t, 1, status.Files)
	assert.Equal(t, 1, status.VectorRows)
	assert.Equal(t, testDims, status.Dimension)
	assert.Equal(t, "static", status.Embeddings.Provider)
	assert.Equal(t, "ready", status.Embeddings.Status)
	assert.Equal(t, testDims, status.Embeddings.Dimensions)
	require.NotNil(t, status.Queries)
	assert.EqualValues(t, 1, status.Queries.TotalQueries)
}

func TestServer_Resources(t *testing.T) {
	// Given: a file already in the catalog before the server starts serving
	f := newFixture(t)
	p := f.write(t, "readme.md", "# Title\n\nSome body text.")
	_, err := f.catalog.RecordProcessing(context.Background(), p, p)
	require.NoError(t, err)

	// When: resources are registered and read
	require.NoError(t, f.srv.RegisterResources(context.Background()))
	res, err := f.srv.handleReadResource(context.Background(), p)

	// Then: the file is served with a markdown MIME type
	require.NoError(t, err)
	assert.Equal(t, []string{"file://" + filepath.ToSlash(p)}, f.srv.ResourceURIs())
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "text/markdown", res.Contents[0].MIMEType)
	assert.True(t, strings.HasPrefix(res.Contents[0].Text, "# Title"))
}

func TestServer_ReadResourceRejectsUncataloged(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "secret.txt", "not indexed")

	_, err := f.srv.handleReadResource(context.Background(), p)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_ReadResourceTooLarge(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "big.txt", strings.Repeat("x", MaxResourceSize+1))
	_, err := f.catalog.RecordProcessing(context.Background(), p, p)
	require.NoError(t, err)

	_, err = f.srv.handleReadResource(context.Background(), p)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeReadFailed, mcpErr.Code)
}

func TestServer_ServeUnknownTransport(t *testing.T) {
	f := newFixture(t)
	err := f.srv.Serve(context.Background(), "sse")
	assert.ErrorContains(t, err, "unknown transport")
}
