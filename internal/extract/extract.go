// Package extract turns files into indexable text.
package extract

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/magicfolder/magicfolder/internal/config"
	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

// DefaultExtensions are the plain text and lightweight markup formats read verbatim.
var DefaultExtensions = []string{".txt", ".text", ".md", ".markdown"}

// Extractor returns a file's text, or "" when there is nothing to index.
type Extractor interface {
	Extract(path string) (string, error)
	CanHandle(path string) bool
}

// TextExtractor reads allow-listed files verbatim.
type TextExtractor struct {
	extensions  map[string]bool
	maxFileSize int64
}

var _ Extractor = (*TextExtractor)(nil)

// New builds an extractor from config. Extensions are matched case-insensitively;
// a maxFileSize of 0 disables the size guard.
func New(cfg config.ExtractConfig) *TextExtractor {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	e := &TextExtractor{
		extensions:  make(map[string]bool, len(exts)),
		maxFileSize: cfg.MaxFileSize,
	}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.extensions[ext] = true
	}
	return e
}

// CanHandle reports whether path has an allow-listed extension.
func (e *TextExtractor) CanHandle(path string) bool {
	return e.extensions[strings.ToLower(filepath.Ext(path))]
}

// Extract returns the full contents of a recognized file.
// Unrecognized extensions and oversized files yield "" and no error.
func (e *TextExtractor) Extract(path string) (string, error) {
	if !e.CanHandle(path) {
		return "", nil
	}

	if e.maxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", mferrors.IO(path, err)
		}
		if info.Size() > e.maxFileSize {
			slog.Warn("extract_skipped_oversized",
				slog.String("path", path),
				slog.Int64("size", info.Size()),
				slog.Int64("max_size", e.maxFileSize))
			return "", nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", mferrors.IO(path, err)
	}
	return string(data), nil
}
