package volume

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// StageRecord is the adjustment trail of one pipeline stage.
type StageRecord struct {
	Stage       string
	Adjustments []Adjustment
}

// TrackInput is what the tracker assembles a record from.
type TrackInput struct {
	Input        PlanInput
	MessageCount int
	Stages       []StageRecord
}

// Tracking is the audit metadata attached to a plan.
type Tracking struct {
	PredictionID     string
	InputFingerprint string
	MessageCount     int
	Adjustments      []Adjustment
}

// Tracker assembles audit metadata. It makes no decisions.
type Tracker interface {
	Track(in TrackInput) Tracking
}

// PredictionTracker issues prediction IDs and fingerprints inputs for outcome correlation.
type PredictionTracker struct {
	newID func() string
}

// NewPredictionTracker creates a tracker that issues random UUIDs.
func NewPredictionTracker() *PredictionTracker {
	return &PredictionTracker{newID: uuid.NewString}
}

// Track concatenates stage adjustments in pipeline order.
func (t *PredictionTracker) Track(in TrackInput) Tracking {
	var adjustments []Adjustment
	for _, s := range in.Stages {
		adjustments = append(adjustments, s.Adjustments...)
	}
	if adjustments == nil {
		adjustments = []Adjustment{}
	}
	return Tracking{
		PredictionID:     t.newID(),
		InputFingerprint: Fingerprint(in.Input),
		MessageCount:     in.MessageCount,
		Adjustments:      adjustments,
	}
}

// Fingerprint hashes the canonical JSON form of an input. Identical inputs
// always produce the same fingerprint.
func Fingerprint(in PlanInput) string {
	payload, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}
