// Package errors provides the coded error taxonomy shared by the crawler,
// indexer, orchestrator and search engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 3XX: Network errors (per-URL fetch failures)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (corpus inconsistency, storage)
//   - 6XX: Conflict errors (crawl session state)
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
	CategoryConflict   Category = "CONFLICT"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Network errors (300-399)
	ErrCodeFetchFailed = "ERR_301_FETCH_FAILED"
	ErrCodeBadStatus   = "ERR_302_BAD_STATUS"
	ErrCodeDisallowed  = "ERR_303_DISALLOWED"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidURL     = "ERR_402_INVALID_URL"
	ErrCodeOutsideSites   = "ERR_403_OUTSIDE_SITES"
	ErrCodeQueryEmpty     = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooCommon = "ERR_407_QUERY_TOO_COMMON"

	// Internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeStorage            = "ERR_502_STORAGE"
	ErrCodeCorpusInconsistent = "ERR_505_CORPUS_INCONSISTENT"

	// Conflict errors (600-699)
	ErrCodeAlreadyRunning = "ERR_601_ALREADY_RUNNING"
	ErrCodeNotRunning     = "ERR_602_NOT_RUNNING"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryConflict
	default:
		return CategoryInternal
	}
}

// isRetryableCode reports whether a later attempt may succeed.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFetchFailed, ErrCodeBadStatus:
		return true
	default:
		return false
	}
}
