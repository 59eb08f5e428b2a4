package mcp

import "github.com/magicfolder/magicfolder/internal/telemetry"

// ProcessFileInput defines the input schema for the process_file tool.
type ProcessFileInput struct {
	FilePath string `json:"file_path" jsonschema:"path of the file to index, absolute or relative to the server's working directory"`
}

// ProcessFileOutput defines the output schema for the process_file tool.
type ProcessFileOutput struct {
	Status   string  `json:"status" jsonschema:"processed or skipped"`
	Message  string  `json:"message"`
	Path     string  `json:"path" jsonschema:"absolute path that was indexed"`
	FileID   *int64  `json:"file_id,omitempty" jsonschema:"catalog id, absent when skipped"`
	VectorID *string `json:"vector_id,omitempty" jsonschema:"vector key, absent when skipped"`
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"natural-language query"`
	TopK  *int   `json:"top_k,omitempty" jsonschema:"maximum number of results, default 5"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one ranked file.
type SearchResultOutput struct {
	Path  string  `json:"path"`
	Score float32 `json:"score" jsonschema:"distance to the query, smaller is closer"`
}

// FileInfoInput defines the input schema for the file_info tool.
type FileInfoInput struct {
	Path string `json:"path" jsonschema:"path of an indexed file"`
}

// FileInfoOutput defines the output schema for the file_info tool.
type FileInfoOutput struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	ProcessedAt string `json:"processed_at"`
	VectorID    string `json:"vector_id"`
	VectorRows  int    `json:"vector_rows" jsonschema:"rows stored for this key, more than one after reprocessing"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Files      int           `json:"files"`
	VectorRows int           `json:"vector_rows"`
	Dimension  int           `json:"dimension"`
	Embeddings EmbeddingInfo `json:"embeddings"`
	// Queries covers searches served by this process only.
	Queries *telemetry.Snapshot `json:"queries,omitempty"`
}

// EmbeddingInfo reports the active embedding provider.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"` // ready or unavailable
}
