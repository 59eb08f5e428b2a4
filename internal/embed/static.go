package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

// StaticEmbedder produces deterministic hash-based embeddings.
// It needs no network or model download, at the cost of semantic quality.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// English function words carry little signal for file retrieval.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "is": true, "it": true,
	"on": true, "for": true, "with": true, "as": true, "be": true,
	"this": true, "that": true, "are": true, "was": true, "at": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3

	// StaticDefaultDimensions is used when a non-positive dimension is given.
	StaticDefaultDimensions = 256
)

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder producing dims-length vectors.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns a unit-length vector; blank text yields the zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, mferrors.Internal("embedder is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, mferrors.Upstream(mferrors.ErrCodeUpstreamUnavailable, "embedding cancelled", err)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}

	vector := make([]float32, e.dims)
	for _, token := range tokenize(trimmed) {
		vector[hashToIndex(token, e.dims)] += tokenWeight
	}
	for _, gram := range ngrams(trimmed, ngramSize) {
		vector[hashToIndex(gram, e.dims)] += ngramWeight
	}

	return normalizeVector(vector), nil
}

// tokenize lowercases letter/digit runs and drops stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ngrams returns character n-grams over the letters and digits of text.
func ngrams(text string, n int) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	runes := []rune(sb.String())
	if len(runes) < n {
		return nil
	}

	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports whether the embedder is still open.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
