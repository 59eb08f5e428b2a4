package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/magicfolder/magicfolder/internal/config"
	"github.com/magicfolder/magicfolder/internal/embed"
	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/search"
	"github.com/magicfolder/magicfolder/internal/store"
	"github.com/magicfolder/magicfolder/internal/telemetry"
	"github.com/magicfolder/magicfolder/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "MagicFolder"

// Searcher is the query side of the pipeline. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
	DefaultTopK() int
}

// Dependencies are the components the server exposes. Vectors, Embedder
// and Queries are optional and only feed file_info and index_status.
type Dependencies struct {
	Indexer  index.Processor
	Engine   Searcher
	Catalog  store.Catalog
	Vectors  store.VectorIndex
	Embedder embed.Embedder
	Queries  *telemetry.QueryMetrics
	Config   *config.Config
}

// Server bridges MCP clients to the indexing and query pipelines.
type Server struct {
	mcp      *mcp.Server
	indexer  index.Processor
	engine   Searcher
	catalog  store.Catalog
	vectors  store.VectorIndex
	embedder embed.Embedder
	queries  *telemetry.QueryMetrics
	config   *config.Config
	logger   *slog.Logger

	mu        sync.RWMutex
	resources map[string]bool
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "process_file",
		Description: "Index one file: extract its text, embed it and record it in the catalog. Unsupported or empty files are reported as skipped.",
	},
	{
		Name:        "search",
		Description: "Find indexed files whose content is semantically closest to a natural-language query. Results are ordered by ascending distance.",
	},
	{
		Name:        "file_info",
		Description: "Look up the catalog entry for an indexed file: id, processing time, vector key and stored row count.",
	},
	{
		Name:        "index_status",
		Description: "Report catalog and vector table sizes and which embedding model is active.",
	},
}

// NewServer creates an MCP server over the given pipelines.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		indexer:   deps.Indexer,
		engine:    deps.Engine,
		catalog:   deps.Catalog,
		vectors:   deps.Vectors,
		embedder:  deps.Embedder,
		queries:   deps.Queries,
		config:    cfg,
		logger:    slog.Default(),
		resources: make(map[string]bool),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "process_file":
		var in ProcessFileInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleProcessFile(ctx, in)
	case "search":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, md, err := s.handleSearch(ctx, in)
		if err != nil {
			return nil, err
		}
		return md, nil
	case "file_info":
		var in FileInfoInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleFileInfo(ctx, in)
	case "index_status":
		return s.handleIndexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) handleProcessFile(ctx context.Context, in ProcessFileInput) (ProcessFileOutput, error) {
	if strings.TrimSpace(in.FilePath) == "" {
		return ProcessFileOutput{}, NewInvalidParamsError("file_path is required")
	}

	start := time.Now()
	requestID := uuid.NewString()
	s.logger.Info("process_file started",
		slog.String("request_id", requestID),
		slog.String("path", in.FilePath))

	res, err := s.indexer.Process(ctx, in.FilePath)
	if err != nil {
		s.logger.Error("process_file failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return ProcessFileOutput{}, MapError(err)
	}

	if res.Status == index.StatusProcessed {
		s.registerFileResource(res.Path)
	}

	s.logger.Info("process_file completed",
		slog.String("request_id", requestID),
		slog.String("status", string(res.Status)),
		slog.Duration("duration", time.Since(start)))
	return ToProcessFileOutput(res), nil
}

func (s *Server) handleSearch(ctx context.Context, in SearchInput) (SearchOutput, string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{}, "", NewInvalidParamsError("query parameter is required")
	}
	topK := s.engine.DefaultTopK()
	if in.TopK != nil {
		topK = *in.TopK
	}

	start := time.Now()
	requestID := uuid.NewString()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.Int("top_k", topK))

	results, err := s.engine.Search(ctx, in.Query, topK)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchOutput{}, "", MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))
	return ToSearchOutput(results), FormatSearchResults(in.Query, results), nil
}

func (s *Server) handleFileInfo(ctx context.Context, in FileInfoInput) (FileInfoOutput, error) {
	if strings.TrimSpace(in.Path) == "" {
		return FileInfoOutput{}, NewInvalidParamsError("path is required")
	}
	abs, err := filepath.Abs(in.Path)
	if err != nil {
		return FileInfoOutput{}, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", in.Path))
	}

	rec, err := s.catalog.GetByPath(ctx, abs)
	if err != nil {
		return FileInfoOutput{}, MapError(err)
	}
	if rec == nil {
		return FileInfoOutput{}, &MCPError{
			Code:    ErrCodeFileNotFound,
			Message: fmt.Sprintf("file not indexed: %s", abs),
		}
	}

	rows := 0
	if s.vectors != nil {
		rows = s.vectors.CountKey(rec.VectorKey)
	}
	return ToFileInfoOutput(rec, rows), nil
}

func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	files, err := s.catalog.Count(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{Files: files}
	if s.queries != nil {
		out.Queries = s.queries.Snapshot()
	}
	if s.vectors != nil {
		out.VectorRows = s.vectors.Count()
		out.Dimension = s.vectors.Dimension()
	}

	out.Embeddings = EmbeddingInfo{
		Provider: s.config.Embeddings.Provider,
		Model:    "none",
		Status:   "unavailable",
	}
	if s.embedder != nil {
		out.Embeddings.Model = s.embedder.ModelName()
		out.Embeddings.Dimensions = s.embedder.Dimensions()
		if s.embedder.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
	}
	return out, nil
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpProcessFileHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpFileInfoHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpIndexStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpProcessFileHandler(ctx context.Context, _ *mcp.CallToolRequest, in ProcessFileInput) (
	*mcp.CallToolResult,
	ProcessFileOutput,
	error,
) {
	out, err := s.handleProcessFile(ctx, in)
	if err != nil {
		return nil, ProcessFileOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, md, err := s.handleSearch(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: md}},
	}, out, nil
}

func (s *Server) mcpFileInfoHandler(ctx context.Context, _ *mcp.CallToolRequest, in FileInfoInput) (
	*mcp.CallToolResult,
	FileInfoOutput,
	error,
) {
	out, err := s.handleFileInfo(ctx, in)
	if err != nil {
		return nil, FileInfoOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server until ctx is cancelled. Only stdio is supported;
// the HTTP front end lives in internal/httpapi.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
