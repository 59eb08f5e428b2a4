package embed

import (
	"fmt"

	"github.com/magicfolder/magicfolder/internal/config"
	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderOllama calls a local or remote Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses the offline hashing embedder.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder builds the embedder selected by cfg.Provider.
// There is no silent fallback: an unknown provider is a config error.
func NewEmbedder(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:              cfg.Host,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case ProviderStatic:
		return NewStaticEmbedder(cfg.Dimensions), nil
	default:
		return nil, mferrors.Config(fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil)
	}
}
