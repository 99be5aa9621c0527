package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Pipeline failure kinds. Each is fatal only for the unit it names.
	ErrUpstreamFormat = errors.New("upstream format conversion failed")
	ErrAnalysis       = errors.New("syntactic analysis failed")
	ErrEmbedding      = errors.New("embedding failed")
)
