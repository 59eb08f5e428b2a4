// Package errors provides structured error handling for MagicFolder.
//
// Every failure that crosses a component boundary is an *Error carrying a
// closed Kind, a stable code and structured details. Codes follow the pattern
// ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Upstream embedding service errors
//   - 4XX: Validation and schema errors
//   - 5XX: Internal errors
//   - 6XX: Storage engine errors
package errors

// Kind is the closed set of failure kinds a pipeline step can report.
// Skipped content is not an error and has no Kind.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUpstream
	KindDimensionMismatch
	KindSchemaMismatch
	KindStorage
	KindIO
	KindConfig
	KindValidation
)

// String returns the snake_case name used in logs and JSON.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindStorage:
		return "storage"
	case KindIO:
		return "io"
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryUpstream   Category = "UPSTREAM"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
	CategoryStorage    Category = "STORAGE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeReadFailed   = "ERR_202_READ_FAILED"

	// Upstream errors (300-399)
	ErrCodeUpstreamUnavailable = "ERR_301_UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamStatus      = "ERR_302_UPSTREAM_STATUS"
	ErrCodeUpstreamDecode      = "ERR_303_UPSTREAM_DECODE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeSchemaMismatch    = "ERR_407_SCHEMA_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"

	// Storage errors (600-699)
	ErrCodeVectorStore  = "ERR_601_VECTOR_STORE"
	ErrCodeCatalogStore = "ERR_602_CATALOG_STORE"
	ErrCodeStoreLocked  = "ERR_603_STORE_LOCKED"
	ErrCodeStoreClosed  = "ERR_604_STORE_CLOSED"
)

// kindFromCode maps every known code onto its Kind.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid:
		return KindConfig
	case ErrCodeFileNotFound:
		return KindNotFound
	case ErrCodeReadFailed:
		return KindIO
	case ErrCodeUpstreamUnavailable, ErrCodeUpstreamStatus, ErrCodeUpstreamDecode:
		return KindUpstream
	case ErrCodeInvalidInput, ErrCodeQueryEmpty:
		return KindValidation
	case ErrCodeDimensionMismatch:
		return KindDimensionMismatch
	case ErrCodeSchemaMismatch:
		return KindSchemaMismatch
	case ErrCodeVectorStore, ErrCodeCatalogStore, ErrCodeStoreLocked, ErrCodeStoreClosed:
		return KindStorage
	default:
		return KindInternal
	}
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryValidation
	case '6':
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeSchemaMismatch, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeUpstreamUnavailable:
		return SeverityWarning
	}
	return SeverityError
}

// isTransientCode reports codes a caller may reasonably retry.
// The pipelines themselves never retry.
func isTransientCode(code string) bool {
	switch code {
	case ErrCodeUpstreamUnavailable, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
