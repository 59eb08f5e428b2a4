package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/magicfolder/magicfolder/internal/index"
	"github.com/magicfolder/magicfolder/internal/search"
	"github.com/magicfolder/magicfolder/internal/store"
)

// FormatSearchResults renders ranked files as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "%d. `%s` (distance: %.4f)\n", i+1, r.Path, r.Score)
	}
	return sb.String()
}

// ToSearchOutput converts engine results to the tool's output schema.
func ToSearchOutput(results []search.Result) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{Path: r.Path, Score: r.Score})
	}
	return out
}

// ToProcessFileOutput converts a pipeline result to the tool's output schema.
func ToProcessFileOutput(r *index.ProcessResult) ProcessFileOutput {
	if r == nil {
		return ProcessFileOutput{}
	}
	return ProcessFileOutput{
		Status:   string(r.Status),
		Message:  r.Message,
		Path:     r.Path,
		FileID:   r.ID,
		VectorID: r.VectorKey,
	}
}

// ToFileInfoOutput converts a catalog row to the tool's output schema.
func ToFileInfoOutput(rec *store.FileRecord, rows int) FileInfoOutput {
	return FileInfoOutput{
		ID:          rec.ID,
		Path:        rec.Path,
		ProcessedAt: rec.ProcessedAt.UTC().Format(time.RFC3339),
		VectorID:    rec.VectorKey,
		VectorRows:  rows,
	}
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
