package database

import "errors"

var (
	// ErrCreatorNotFound is returned when no creators row matches the id.
	ErrCreatorNotFound = errors.New("creator not found")
	// ErrPlanNotFound is returned when a creator has no stored plan.
	ErrPlanNotFound = errors.New("volume plan not found")
	// ErrPredictionNotFound is returned when an outcome references an unknown prediction.
	ErrPredictionNotFound = errors.New("prediction not found")
)

// IsNotFound reports whether err is one of the repository not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCreatorNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrPredictionNotFound)
}
