package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes covers the text formats the extractor can be configured for.
var mimeTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdx":      "text/markdown",
	".rst":      "text/x-rst",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".json":     "application/json",
	".yaml":     "text/x-yaml",
	".yml":      "text/x-yaml",
	".toml":     "text/x-toml",
	".xml":      "text/xml",
	".html":     "text/html",
	".htm":      "text/html",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".sh":       "text/x-sh",
	".sql":      "text/x-sql",
}

// MimeTypeForPath returns the MIME type for a file path by extension,
// falling back to text/plain.
func MimeTypeForPath(path string) string {
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "text/plain"
}
