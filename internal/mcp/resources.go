package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the largest file served as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// RegisterResources publishes every cataloged file as a file:// resource.
// Files processed later through the process_file tool are added as they
// are indexed.
func (s *Server) RegisterResources(ctx context.Context) error {
	records, err := s.catalog.List(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	for _, rec := range records {
		s.registerFileResource(rec.Path)
	}
	s.logger.Info("registered resources", "count", len(records))
	return nil
}

// ResourceURIs returns the registered resource URIs in sorted order.
func (s *Server) ResourceURIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.resources))
	for uri := range s.resources {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

func resourceURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

func (s *Server) registerFileResource(path string) {
	uri := resourceURI(path)

	s.mu.Lock()
	seen := s.resources[uri]
	s.resources[uri] = true
	s.mu.Unlock()
	if seen {
		return
	}

	desc := path
	if info, err := os.Stat(path); err == nil {
		desc = fmt.Sprintf("%s (%s)", path, humanSize(info.Size()))
	}

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(path),
			URI:         uri,
			Description: desc,
			MIMEType:    MimeTypeForPath(path),
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleReadResource(ctx, path)
		},
	)
}

// handleReadResource serves a file's current content. Only cataloged
// paths are readable.
func (s *Server) handleReadResource(ctx context.Context, path string) (*mcp.ReadResourceResult, error) {
	rec, err := s.catalog.GetByPath(ctx, path)
	if err != nil {
		return nil, MapError(err)
	}
	if rec == nil {
		return nil, NewResourceNotFoundError(resourceURI(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", path),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeReadFailed,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      resourceURI(path),
				MIMEType: MimeTypeForPath(path),
				Text:     string(content),
			},
		},
	}, nil
}
