package watcher

import (
	"time"
)

// Operation is the kind of change seen for a path.
type Operation int

const (
	// OpCreate means a new file appeared.
	OpCreate Operation = iota
	// OpModify means an existing file was written.
	OpModify
	// OpDelete means the file is gone.
	OpDelete
	// OpRename means the file was moved away from Path.
	OpRename
)

// String returns the upper-case operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one coalesced change.
type FileEvent struct {
	// Path is absolute and cleaned.
	Path string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a path must be quiet before its event is emitted.
	// Default: 2s
	Debounce time.Duration

	// EventBufferSize bounds the number of undelivered batches.
	// Default: 64
	EventBufferSize int

	// Filter reports whether a file path is interesting. Nil accepts all.
	Filter func(path string) bool

	// IgnoreDirs are absolute directories never watched (e.g. the data dir).
	IgnoreDirs []string
}

// DefaultOptions returns a 2s debounce and a 64-batch buffer.
func DefaultOptions() Options {
	return Options{
		Debounce:        2 * time.Second,
		EventBufferSize: 64,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	return o
}
