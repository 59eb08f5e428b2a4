package embed

import "time"

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel produces 1024-dimension vectors.
	DefaultOllamaModel = "mxbai-embed-large"

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// OllamaPoolSize for connection pool.
	OllamaPoolSize = 4

	// maxErrorBody caps how much of an error response is kept in details.
	maxErrorBody = 512
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int

	// Timeout applies per request. The client has no retry loop.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing calls; 0 means unlimited.
	RequestsPerSecond float64

	PoolSize int
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       DefaultOllamaHost,
		Model:      DefaultOllamaModel,
		Dimensions: 1024,
		Timeout:    DefaultTimeout,
		PoolSize:   OllamaPoolSize,
	}
}

// OllamaEmbedRequest is the Ollama /api/embed request.
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// OllamaEmbedResponse accepts both the /api/embed shape (embeddings) and
// the legacy /api/embeddings shape (embedding).
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
	Embedding  []float64   `json:"embedding"`
}

// vector returns the first embedding in the response, or nil.
func (r *OllamaEmbedResponse) vector() []float64 {
	if len(r.Embeddings) > 0 {
		return r.Embeddings[0]
	}
	return r.Embedding
}

// OllamaModelListResponse is the Ollama /api/tags response.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes an installed model.
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
