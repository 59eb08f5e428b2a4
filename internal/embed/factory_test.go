package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicfolder/magicfolder/internal/config"
	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

func TestNewEmbedder_SelectsProvider(t *testing.T) {
	cfg := config.NewConfig().Embeddings

	e, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)
	assert.Equal(t, cfg.Model, e.ModelName())
	assert.Equal(t, 1024, e.Dimensions())

	cfg.Provider = "static"
	cfg.Dimensions = 32
	e, err = NewEmbedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, e)
	assert.Equal(t, 32, e.Dimensions())
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "mlx"

	_, err := NewEmbedder(cfg)

	assert.Equal(t, mferrors.KindConfig, mferrors.KindOf(err))
}
