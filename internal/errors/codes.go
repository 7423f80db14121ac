// Package errors provides structured error handling for YetiSearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Storage errors (connection, writes, schema)
//   - 2XX: Search errors (match execution, filter translation)
//   - 3XX: Input validation errors
//   - 4XX: Soft failures (enrichment steps that degrade, never abort)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryStorage indicates failures in the underlying store.
	CategoryStorage Category = "STORAGE"
	// CategorySearch indicates failures while executing a planned query.
	CategorySearch Category = "SEARCH"
	// CategoryInput indicates invalid caller-supplied input.
	CategoryInput Category = "INPUT"
	// CategorySoft indicates degraded enrichment; the operation continues.
	CategorySoft Category = "SOFT"
)

// Error codes organized by category.
const (
	// Storage errors (100-199)
	ErrCodeStorageConnect = "ERR_101_STORAGE_CONNECT"
	ErrCodeStorageWrite   = "ERR_102_STORAGE_WRITE"
	ErrCodeStorageSchema  = "ERR_103_STORAGE_SCHEMA"
	ErrCodeStorageRead    = "ERR_104_STORAGE_READ"
	ErrCodeStorageLocked  = "ERR_105_STORAGE_LOCKED"
	ErrCodeStorageCorrupt = "ERR_106_STORAGE_CORRUPT"

	// Search errors (200-299)
	ErrCodeSearchMatch  = "ERR_201_SEARCH_MATCH"
	ErrCodeSearchFilter = "ERR_202_SEARCH_FILTER"

	// Input errors (300-399)
	ErrCodeUnknownIndex    = "ERR_301_UNKNOWN_INDEX"
	ErrCodeInvalidOperator = "ERR_302_INVALID_OPERATOR"
	ErrCodeInvalidLanguage = "ERR_303_INVALID_LANGUAGE"
	ErrCodeInvalidInput    = "ERR_304_INVALID_INPUT"
	ErrCodeInvalidConfig   = "ERR_305_INVALID_CONFIG"

	// Soft failures (400-499)
	ErrCodeSynonymsLoad = "ERR_401_SYNONYMS_LOAD"
	ErrCodeFacetFailed  = "ERR_402_FACET_FAILED"
	ErrCodeSuggestion   = "ERR_403_SUGGESTION"
)

// categoryFromCode derives the category from the code's hundreds digit.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryStorage
	}
	switch code[4] {
	case '1':
		return CategoryStorage
	case '2':
		return CategorySearch
	case '3':
		return CategoryInput
	case '4':
		return CategorySoft
	default:
		return CategoryStorage
	}
}
