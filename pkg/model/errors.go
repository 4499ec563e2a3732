package model

import "errors"

// Sentinel error kinds per the pipeline's error taxonomy. Callers wrap
// these with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	// Input errors — fatal for the current dataset, no partial state left behind.
	ErrDsdInvalid      = errors.New("dsd invalid")
	ErrTsvMalformed    = errors.New("tsv malformed")
	ErrInventoryMissing = errors.New("inventory entry missing or malformed")

	// Network errors.
	ErrFetchTransient = errors.New("fetch failed transiently")
	ErrFetchNotFound  = errors.New("fetch target not found")

	// Cache errors.
	ErrCacheIO = errors.New("cache io error")

	// Schema errors.
	ErrSchemaEvolutionConflict = errors.New("schema evolution conflict")

	// Load errors.
	ErrBulkLoadFailed = errors.New("bulk load failed")
	ErrFinalizeFailed = errors.New("finalize failed")

	// State errors.
	ErrIngestionHistoryWriteFailed = errors.New("ingestion history write failed")
)
