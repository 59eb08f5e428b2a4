package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/pkg/version"
)

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	limiter   *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an embedder. It does not contact the service;
// use Available for a health check.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	e := &OllamaEmbedder{
		// Timeouts are applied per request through the context.
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e
}

// Embed sends one text to /api/embed and returns the vector as received.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, mferrors.Internal("embedder is closed", nil)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, e.upstreamErr(mferrors.ErrCodeUpstreamUnavailable, "rate limiter wait cancelled", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	vec, err := e.doEmbed(ctx, text)
	if err != nil {
		slog.Debug("embedding_failed",
			slog.String("model", e.config.Model),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}

	slog.Debug("embedding_completed",
		slog.String("model", e.config.Model),
		slog.Int("chars", len(text)),
		slog.Int("dims", len(vec)),
		slog.Duration("elapsed", time.Since(start)))
	return vec, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(OllamaEmbedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, mferrors.Internal("failed to marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, e.upstreamErr(mferrors.ErrCodeUpstreamUnavailable, "failed to create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.upstreamErr(mferrors.ErrCodeUpstreamUnavailable, "embedding service unreachable", err).
			WithSuggestion("Start Ollama with 'ollama serve' or set embeddings.host")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, e.upstreamErr(mferrors.ErrCodeUpstreamStatus,
			fmt.Sprintf("embedding request failed with status %d", resp.StatusCode), nil).
			WithDetail("status", strconv.Itoa(resp.StatusCode)).
			WithDetail("body", strings.TrimSpace(string(snippet)))
	}

	var result OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, e.upstreamErr(mferrors.ErrCodeUpstreamDecode, "failed to decode embedding response", err)
	}

	raw := result.vector()
	if len(raw) == 0 {
		return nil, e.upstreamErr(mferrors.ErrCodeUpstreamDecode, "embedding response contained no vector", nil)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (e *OllamaEmbedder) upstreamErr(code, msg string, cause error) *mferrors.Error {
	return mferrors.Upstream(code, msg, cause).
		WithDetail("host", e.config.Host).
		WithDetail("model", e.config.Model)
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks if Ollama is running and the model is installed.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	models, err := e.listModels(ctx)
	if err != nil {
		return false
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true
		}
	}
	return false
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Close releases idle connections. Calls after Close fail.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
