package analyzer

import "errors"

var (
	// ErrInvalidInput marks a request the caller must fix.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoImagery means no scene passed the date, region and cloud cover filters.
	ErrNoImagery = errors.New("no imagery")

	// ErrNoData means scenes exist but the reduction over the region produced nothing.
	ErrNoData = errors.New("no data")
)
