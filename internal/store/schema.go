package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	schemaFile    = "schema.yaml"
	formatVersion = 1
)

// Column describes one column of a vector table.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// TableSchema is the manifest stored as <table>/schema.yaml.
type TableSchema struct {
	FormatVersion int       `yaml:"format_version"`
	Collection    string    `yaml:"collection"`
	Dimension     int       `yaml:"dimension"`
	Metric        Metric    `yaml:"metric"`
	CreatedAt     time.Time `yaml:"created_at"`
	Columns       []Column  `yaml:"columns"`
}

func newTableSchema(collection string, dimension int, metric Metric) TableSchema {
	return TableSchema{
		FormatVersion: formatVersion,
		Collection:    collection,
		Dimension:     dimension,
		Metric:        metric,
		CreatedAt:     time.Now().UTC(),
		Columns: []Column{
			{Name: "path", Type: "utf8"},
			{Name: "vector", Type: fmt.Sprintf("fixed_size_list<float32>[%d]", dimension)},
		},
	}
}

// readSchema loads the manifest. ok is false when the table has none yet.
func readSchema(dir string) (schema TableSchema, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, schemaFile))
	if os.IsNotExist(err) {
		return TableSchema{}, false, nil
	}
	if err != nil {
		return TableSchema{}, false, fmt.Errorf("read schema: %w", err)
	}
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return TableSchema{}, false, fmt.Errorf("parse schema: %w", err)
	}
	if schema.FormatVersion != formatVersion {
		return TableSchema{}, false, fmt.Errorf("unsupported table format version %d", schema.FormatVersion)
	}
	if schema.Dimension <= 0 {
		return TableSchema{}, false, fmt.Errorf("schema has invalid dimension %d", schema.Dimension)
	}
	if schema.Metric == "" {
		schema.Metric = MetricCosine
	}
	return schema, true, nil
}

// ReadTableSchema returns the manifest of an existing table without
// taking its lock. ok is false when the table does not exist.
func ReadTableSchema(storagePath, collection string) (TableSchema, bool, error) {
	return readSchema(TableDir(storagePath, collection))
}

// writeSchema writes the manifest atomically (temp file + rename).
func writeSchema(dir string, schema TableSchema) error {
	data, err := yaml.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	path := filepath.Join(dir, schemaFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename schema: %w", err)
	}
	return nil
}
