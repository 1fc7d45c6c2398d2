package volume

import "errors"

var (
	// ErrAllHorizonsMissing is returned when no horizon signal is available to fuse.
	ErrAllHorizonsMissing = errors.New("volume: at least one horizon signal is required")
	// ErrInvalidConfig is returned before any stage runs when the config is out of range.
	ErrInvalidConfig = errors.New("volume: invalid config")
	// ErrInvalidSignal is returned for malformed performance signals.
	ErrInvalidSignal = errors.New("volume: invalid performance signal")
)

// IsInputError reports whether err is a fatal input or configuration error,
// as opposed to an infrastructure failure around the engine.
func IsInputError(err error) bool {
	return errors.Is(err, ErrAllHorizonsMissing) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidSignal)
}
