package etl

import "errors"

// Error taxonomy shared by sources, transforms and destinations.
// Callers wrap these with context and test them with errors.Is.
var (
	// ErrSourceUnavailable: an input file or remote resource cannot be opened or fetched.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrFieldParse: a single field cannot be coerced to its declared type.
	// Only surfaces when a source runs with the "fail" admission policy.
	ErrFieldParse = errors.New("field parse failure")

	// ErrRateKeyMissing: a lookup key is absent from the exchange rate map.
	ErrRateKeyMissing = errors.New("rate key missing")

	// ErrSchemaMismatch: an append load targets a table with incompatible columns.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrLogWrite: the progress log cannot be appended.
	ErrLogWrite = errors.New("log write failure")
)
