// Package errors provides structured error handling for amanrecall.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store errors (database, index files)
//   - 3XX: Network errors (embedding backends)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStore      Category = "STORE"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal means the operation cannot continue.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning means the operation continued in degraded form.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreOpen      = "ERR_201_STORE_OPEN"
	ErrCodeStoreRead      = "ERR_202_STORE_READ"
	ErrCodeStoreWrite     = "ERR_203_STORE_WRITE"
	ErrCodeCorruptIndex   = "ERR_204_CORRUPT_INDEX"
	ErrCodeStoreClosed    = "ERR_205_STORE_CLOSED"
	ErrCodeFragmentAbsent = "ERR_206_FRAGMENT_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeBackendRejected    = "ERR_303_BACKEND_REJECTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidRange      = "ERR_405_INVALID_LINE_RANGE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeLexicalFailed   = "ERR_504_LEXICAL_FAILED"
)

// categoryFromCode extracts category from the numeric part of the code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreOpen:
		return SeverityFatal
	case ErrCodeEmbeddingFailed, ErrCodeLexicalFailed:
		// Both retrieval paths degrade to an empty list.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable:
		return true
	default:
		return false
	}
}
