package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/magicfolder/magicfolder/internal/store"
)

// InconsistencyType categorizes a cross-store finding.
type InconsistencyType int

const (
	// InconsistencyOrphanVector is a vector key with no catalog row,
	// left behind when the catalog write after an upsert failed.
	InconsistencyOrphanVector InconsistencyType = iota
	// InconsistencyMissingVector is a catalog row whose key has no vector.
	InconsistencyMissingVector
	// InconsistencyDuplicateRows is a key stored more than once, the
	// expected result of reprocessing a file.
	InconsistencyDuplicateRows
)

// String returns the snake_case name.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyDuplicateRows:
		return "duplicate_rows"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *InconsistencyType) UnmarshalText(text []byte) error {
	for _, c := range []InconsistencyType{InconsistencyOrphanVector, InconsistencyMissingVector, InconsistencyDuplicateRows} {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown inconsistency type %q", text)
}

// Inconsistency is one finding for one key.
type Inconsistency struct {
	Type InconsistencyType `json:"type"`
	Key  string            `json:"key"`
	Rows int               `json:"rows"`
}

// CheckResult is a read-only consistency report.
type CheckResult struct {
	CatalogRows     int             `json:"catalog_rows"`
	VectorRows      int             `json:"vector_rows"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Count returns the number of findings of type t.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, inc := range r.Inconsistencies {
		if inc.Type == t {
			n++
		}
	}
	return n
}

// KeyCounter reports row counts per key. *store.VectorTable implements it.
type KeyCounter interface {
	KeyCounts() map[string]int
}

// ConsistencyChecker compares the catalog against the vector table.
// It never modifies either store.
type ConsistencyChecker struct {
	catalog store.Catalog
	vectors KeyCounter
}

// NewConsistencyChecker creates a checker over the two stores.
func NewConsistencyChecker(catalog store.Catalog, vectors KeyCounter) *ConsistencyChecker {
	return &ConsistencyChecker{catalog: catalog, vectors: vectors}
}

// Check returns every orphaned, missing and duplicated key, sorted by key
// within each type.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	catalogKeys, err := c.catalog.VectorKeys(ctx)
	if err != nil {
		return nil, err
	}
	cataloged := make(map[string]bool, len(catalogKeys))
	for _, k := range catalogKeys {
		cataloged[k] = true
	}

	counts := c.vectors.KeyCounts()
	vectorRows := 0
	keys := make([]string, 0, len(counts))
	for k, n := range counts {
		keys = append(keys, k)
		vectorRows += n
	}
	sort.Strings(keys)

	var orphans, dups []Inconsistency
	for _, k := range keys {
		n := counts[k]
		if !cataloged[k] {
			orphans = append(orphans, Inconsistency{Type: InconsistencyOrphanVector, Key: k, Rows: n})
		}
		if n > 1 {
			dups = append(dups, Inconsistency{Type: InconsistencyDuplicateRows, Key: k, Rows: n})
		}
	}

	var missing []Inconsistency
	sort.Strings(catalogKeys)
	for _, k := range catalogKeys {
		if counts[k] == 0 {
			missing = append(missing, Inconsistency{Type: InconsistencyMissingVector, Key: k})
		}
	}

	issues := make([]Inconsistency, 0, len(orphans)+len(missing)+len(dups))
	issues = append(issues, orphans...)
	issues = append(issues, missing...)
	issues = append(issues, dups...)

	res := &CheckResult{
		CatalogRows:     len(catalogKeys),
		VectorRows:      vectorRows,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}

	if len(orphans) > 0 || len(missing) > 0 {
		slog.Warn("consistency_issues_found",
			slog.Int("orphan_vectors", len(orphans)),
			slog.Int("missing_vectors", len(missing)))
	}
	return res, nil
}
