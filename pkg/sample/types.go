// Package sample provides the immutable Sample record replicated between tandem
// nodes, together with its validation rules and wire encoding.
package sample

import (
	"fmt"
	"math"
	"time"

	"github.com/dyluth/tandem/pkg/scoring"
	"github.com/google/uuid"
)

// TimestampPrecision is the resolution sample timestamps are truncated to at creation.
// Cutoff comparisons across nodes rely on both sides using the same resolution.
const TimestampPrecision = time.Millisecond

// Sample is one immutable, uniquely identified measurement.
// Score and category are never stored: they are derived from Inputs on every read.
type Sample struct {
	ID        string    `json:"id"`        // UUID - deduplication key, assigned once by the producing node
	Timestamp time.Time `json:"timestamp"` // Creation time at the producing node (UTC, millisecond precision)
	Inputs    RawInputs `json:"inputs"`    // Optional raw readings
}

// RawInputs is the set of optional readings a sample carries.
type RawInputs struct {
	HRV        Reading `json:"hrv"`         // Heart-rate variability, milliseconds
	HeartRate  Reading `json:"heart_rate"`  // Beats per minute
	SleepHours Reading `json:"sleep_hours"` // Hours slept
}

// New creates a sample with a fresh UUID, stamped at the given time.
func New(at time.Time, inputs RawInputs) Sample {
	return Sample{
		ID:        uuid.New().String(),
		Timestamp: NormalizeTime(at),
		Inputs:    inputs,
	}
}

// NormalizeTime converts t to UTC at TimestampPrecision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// Score derives the sample's score from its raw inputs.
func (s Sample) Score() scoring.Result {
	return scoring.Score(s.Inputs.ScoringInputs())
}

// Validate checks if the Sample has valid field values.
func (s Sample) Validate() error {
	if !isValidUUID(s.ID) {
		return fmt.Errorf("invalid sample ID: not a valid UUID")
	}

	if s.Timestamp.IsZero() {
		return fmt.Errorf("sample %s has no timestamp", s.ID)
	}

	if err := s.Inputs.Validate(); err != nil {
		return fmt.Errorf("sample %s: %w", s.ID, err)
	}

	return nil
}

// Validate checks that every present reading is a finite number.
func (in RawInputs) Validate() error {
	readings := []struct {
		name string
		r    Reading
	}{
		{"hrv", in.HRV},
		{"heart_rate", in.HeartRate},
		{"sleep_hours", in.SleepHours},
	}

	for _, rd := range readings {
		if v, ok := rd.r.Get(); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return fmt.Errorf("reading %s is not a finite number", rd.name)
		}
	}
	return nil
}

// ScoringInputs converts the readings into scoring inputs, leaving absent readings nil.
func (in RawInputs) ScoringInputs() scoring.Inputs {
	return scoring.Inputs{
		HRV:        in.HRV.pointer(),
		HeartRate:  in.HeartRate.pointer(),
		SleepHours: in.SleepHours.pointer(),
	}
}

// Present reports how many readings are present.
func (in RawInputs) Present() int {
	n := 0
	for _, r := range []Reading{in.HRV, in.HeartRate, in.SleepHours} {
		if r.Present() {
			n++
		}
	}
	return n
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
