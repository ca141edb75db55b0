// Package errors provides structured error handling for ragstore.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal, surfaced immediately)
//   - 2XX: Store errors (persistence layer)
//   - 3XX: Embedding provider errors
//   - 4XX: Query and validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates persistence-layer errors.
	CategoryStore Category = "STORE"
	// CategoryProvider indicates embedding provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryQuery indicates query and input validation errors.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the batch can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199). Always fatal: no partial result is returned.
	ErrCodeConfigInvalid      = "ERR_101_CONFIG_INVALID"
	ErrCodeProviderUnknown    = "ERR_102_PROVIDER_UNKNOWN"
	ErrCodeModelMismatch      = "ERR_103_MODEL_MISMATCH"
	ErrCodeDimensionMismatch  = "ERR_104_DIMENSION_MISMATCH"

	// Store errors (200-299)
	ErrCodeStoreOpen    = "ERR_201_STORE_OPEN"
	ErrCodeStoreWrite   = "ERR_202_STORE_WRITE"
	ErrCodeStoreRead    = "ERR_203_STORE_READ"
	ErrCodeStoreCorrupt = "ERR_204_STORE_CORRUPT"
	ErrCodeStoreLocked  = "ERR_205_STORE_LOCKED"
	ErrCodeStoreClosed  = "ERR_206_STORE_CLOSED"

	// Provider errors (300-399). Transient failures are retryable.
	ErrCodeProviderUnavailable = "ERR_301_PROVIDER_UNAVAILABLE"
	ErrCodeEmbeddingFailed     = "ERR_302_EMBEDDING_FAILED"

	// Query errors (400-499)
	ErrCodeInvalidQuery  = "ERR_401_INVALID_QUERY"
	ErrCodeNoDataIndexed = "ERR_402_NO_DATA_INDEXED"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeChunkingFailed    = "ERR_502_CHUNKING_FAILED"
	ErrCodeParagraphTooLarge = "ERR_503_PARAGRAPH_TOO_LARGE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_INVALID")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryProvider
	case '4':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Config errors abort the whole operation; everything else is recoverable
// at the batch level and recorded per resource.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code
// may succeed on retry.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderUnavailable, ErrCodeEmbeddingFailed, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
