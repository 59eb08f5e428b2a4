package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/magicfolder/magicfolder/internal/config"
	"github.com/magicfolder/magicfolder/internal/store"
)

// EmbedderTimeout bounds the availability probe.
const EmbedderTimeout = 5 * time.Second

// CheckEmbedder probes the embedding service. Processing and search both
// need it, so the check is required.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	ctx, cancel := context.WithTimeout(ctx, EmbedderTimeout)
	defer cancel()

	model := c.embedder.ModelName()
	if !c.embedder.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s unavailable", model)
		result.Details = "Start Ollama and run 'ollama pull " + model + "', or set embeddings.provider: static"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready (%d dimensions)", model, c.embedder.Dimensions())
	return result
}

// CheckTableDimension compares the configured dimension with an existing
// vector table. A mismatch makes every upsert and search fail.
func (c *Checker) CheckTableDimension(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "vector_table", Required: true}

	schema, ok, err := store.ReadTableSchema(cfg.VectorPath(), cfg.Storage.Collection)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	case !ok:
		result.Status = StatusPass
		result.Message = "not created yet"
		return result
	}

	if schema.Dimension != cfg.Embeddings.Dimensions {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("table has dimension %d, config has %d", schema.Dimension, cfg.Embeddings.Dimensions)
		result.Details = "Use a new storage.collection or restore the original embeddings.model"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s: dimension %d, metric %s", schema.Collection, schema.Dimension, schema.Metric)
	return result
}
