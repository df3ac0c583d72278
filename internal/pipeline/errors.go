package pipeline

import "errors"

// Run failures fall into four classes. Every error returned from
// Pipeline.Run and Pipeline.RunWith wraps exactly one of them.
var (
	// ErrConfiguration covers malformed resolutions, degenerate boxes and
	// unusable settings. It is reported before any external call.
	ErrConfiguration = errors.New("configuration error")
	// ErrDataQuality is returned when the window yields no usable training row.
	ErrDataQuality = errors.New("data quality error")
	// ErrExternalCall wraps failures of the source, estimator or sinks.
	ErrExternalCall = errors.New("external call failed")
	// ErrRunInProgress is returned when another run holds the run lock.
	ErrRunInProgress = errors.New("estimate run already in progress")
)
