// Package scoring turns raw physiological readings into a bounded score and a
// discrete category.
//
// Scoring is pure: no I/O, no clock, no randomness. Two nodes holding the same
// raw inputs always derive the same score, which is what lets replicated samples
// carry only their raw inputs.
package scoring

import "math"

// Category is the discrete classification of a score.
type Category string

const (
	// CategoryLow is any score below 50
	CategoryLow Category = "low"

	// CategoryModerate is a score in [50, 75)
	CategoryModerate Category = "moderate"

	// CategoryHigh is a score of 75 or more
	CategoryHigh Category = "high"
)

// Plausible upper bounds for each input. The lower bound is zero for all of them.
const (
	MaxHRV        = 200.0 // milliseconds
	MaxHeartRate  = 200.0 // beats per minute
	MaxSleepHours = 10.0
)

// Weights of each normalized term. They sum to 1.
const (
	WeightHeartRate = 0.3
	WeightHRV       = 0.4
	WeightSleep     = 0.3
)

// Neutral is substituted for the normalized term of a missing input.
const Neutral = 0.5

const (
	moderateThreshold = 50.0
	highThreshold     = 75.0
)

// Inputs are the optional readings a score is computed from.
// A nil pointer means the reading is absent.
type Inputs struct {
	HRV        *float64
	HeartRate  *float64
	SleepHours *float64
}

// Result is a computed score with its category.
type Result struct {
	Value    float64  `json:"score"`
	Category Category `json:"category"`
}

// Score computes the score and category for the given inputs.
//
// Heart rate raises the score, while HRV and sleep lower it (both are inverted
// after normalization). Missing readings contribute Neutral.
func Score(in Inputs) Result {
	hr := term(in.HeartRate, MaxHeartRate, false)
	hrv := term(in.HRV, MaxHRV, true)
	sleep := term(in.SleepHours, MaxSleepHours, true)

	sum := WeightHeartRate*hr + WeightHRV*hrv + WeightSleep*sleep
	value := clamp(sum*100, 0, 100)

	return Result{
		Value:    value,
		Category: Classify(value),
	}
}

// Categories lists every category from lowest to highest.
var Categories = []Category{CategoryLow, CategoryModerate, CategoryHigh}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Classify maps a score in [0,100] to its category.
func Classify(value float64) Category {
	switch {
	case value >= highThreshold:
		return CategoryHigh
	case value >= moderateThreshold:
		return CategoryModerate
	default:
		return CategoryLow
	}
}

// Normalize maps v from [0, max] onto [0, 1], clamping values outside the range.
// NaN normalizes to 0.
func Normalize(v, max float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v/max, 0, 1)
}

func term(v *float64, max float64, inverted bool) float64 {
	if v == nil {
		return Neutral
	}
	n := Normalize(*v, max)
	if inverted {
		return 1 - n
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
