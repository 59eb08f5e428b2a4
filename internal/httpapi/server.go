// Package httpapi serves the indexing and query pipelines over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/search"
	"github.com/magicfolder/magicfolder/internal/store"
	"github.com/magicfolder/magicfolder/internal/telemetry"
)

// RootMessage is the body of GET /.
const RootMessage = "MagicFolder API is running!"

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Searcher is the query side of the pipeline. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
	DefaultTopK() int
}

// Dependencies are the components the API exposes. Vectors and Queries
// are optional.
type Dependencies struct {
	Indexer index.Processor
	Engine  Searcher
	Catalog store.Catalog
	Vectors store.VectorIndex
	Queries *telemetry.QueryMetrics
}

// Server routes HTTP requests to the pipelines.
type Server struct {
	router  *gin.Engine
	indexer index.Processor
	engine  Searcher
	catalog store.Catalog
	vectors store.VectorIndex
	queries *telemetry.QueryMetrics
}

// ProcessFileRequest is the body of POST /process_file.
type ProcessFileRequest struct {
	FilePath string `json:"file_path"`
}

// SearchRequest is the body of POST /search. TopK defaults to the engine's
// default when omitted.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

// StatsResponse is the body of GET /stats. Queries counts searches served
// since this process started.
type StatsResponse struct {
	Files      int                 `json:"files"`
	VectorRows int                 `json:"vector_rows"`
	Queries    *telemetry.Snapshot `json:"queries,omitempty"`
}

// FileInfoResponse is one catalog row plus its stored vector row count.
type FileInfoResponse struct {
	*store.FileRecord
	VectorRows int `json:"vector_rows"`
}

// New builds the router.
func New(deps Dependencies) (*Server, error) {
	if deps.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}

	s := &Server{
		indexer: deps.Indexer,
		engine:  deps.Engine,
		catalog: deps.Catalog,
		vectors: deps.Vectors,
		queries: deps.Queries,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	r.GET("/", s.root)
	r.POST("/process_file", s.processFile)
	r.POST("/search", s.search)
	r.GET("/files", s.listFiles)
	r.GET("/files/info", s.fileInfo)
	r.GET("/stats", s.stats)

	s.router = r
	return s, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("http_shutdown", slog.String("addr", addr))
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) root(c *gin.Context) {
	c.String(http.StatusOK, RootMessage)
}

func (s *Server) processFile(c *gin.Context) {
	var req ProcessFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, mferrors.Validation(mferrors.ErrCodeInvalidInput, "invalid request body: "+err.Error()))
		return
	}

	res, err := s.indexer.Process(c.Request.Context(), req.FilePath)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, mferrors.Validation(mferrors.ErrCodeInvalidInput, "invalid request body: "+err.Error()))
		return
	}

	topK := s.engine.DefaultTopK()
	if req.TopK != nil {
		topK = *req.TopK
	}

	results, err := s.engine.Search(c.Request.Context(), req.Query, topK)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) listFiles(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		writeError(c, err)
		return
	}

	records, err := s.catalog.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []*store.FileRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) fileInfo(c *gin.Context) {
	p := strings.TrimSpace(c.Query("path"))
	if p == "" {
		writeError(c, mferrors.Validation(mferrors.ErrCodeInvalidInput, "path query parameter is required"))
		return
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		writeError(c, mferrors.Validation(mferrors.ErrCodeInvalidInput, "invalid path: "+p))
		return
	}

	rec, err := s.catalog.GetByPath(c.Request.Context(), abs)
	if err != nil {
		writeError(c, err)
		return
	}
	if rec == nil {
		writeError(c, mferrors.NotFound(abs).WithSuggestion("Process the file first."))
		return
	}

	resp := FileInfoResponse{FileRecord: rec}
	if s.vectors != nil {
		resp.VectorRows = s.vectors.CountKey(rec.VectorKey)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) stats(c *gin.Context) {
	files, err := s.catalog.Count(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := StatsResponse{Files: files}
	if s.vectors != nil {
		resp.VectorRows = s.vectors.Count()
	}
	if s.queries != nil {
		resp.Queries = s.queries.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, mferrors.Validation(mferrors.ErrCodeInvalidInput, name+" must be a non-negative integer")
	}
	return n, nil
}

// StatusFor maps an error to its HTTP status by kind.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}

	me, ok := mferrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch me.Kind {
	case mferrors.KindNotFound:
		return http.StatusNotFound
	case mferrors.KindValidation:
		return http.StatusBadRequest
	case mferrors.KindUpstream:
		return http.StatusBadGateway
	case mferrors.KindDimensionMismatch, mferrors.KindSchemaMismatch:
		return http.StatusConflict
	case mferrors.KindStorage:
		if mferrors.HasKind(me, mferrors.KindDimensionMismatch) {
			return http.StatusConflict
		}
		if me.Code == mferrors.ErrCodeStoreLocked || me.Code == mferrors.ErrCodeStoreClosed {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	body, jerr := mferrors.FormatJSON(err)
	if jerr != nil {
		body = []byte(`{"message":"internal error"}`)
	}

	attrs := append([]any{
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.Int("status", status),
	}, mferrors.FormatForLog(err)...)
	if status >= http.StatusInternalServerError {
		slog.Error("http_request_failed", attrs...)
	} else {
		slog.Warn("http_request_rejected", attrs...)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":      json.RawMessage(body),
		"request_id": c.GetString(requestIDKey),
	})
}

const requestIDKey = "request_id"

// requestID reuses an incoming X-Request-ID or assigns a new UUID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http_request",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
}
