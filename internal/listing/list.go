// Package listing filters and renders a node's samples for the CLI.
package listing

import (
	"fmt"
	"time"

	"github.com/dyluth/tandem/pkg/sample"
	"github.com/dyluth/tandem/pkg/scoring"
)

// OutputFormat specifies how to format the sample list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with one row per sample
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs scored samples as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat accepts "", "default" or "jsonl".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be one of: default, jsonl)", s)
	}
}

// Filter selects samples for display. Zero fields do not filter.
// All criteria are ANDed together.
type Filter struct {
	Since    time.Time        // inclusive
	Until    time.Time        // inclusive
	Category scoring.Category // derived category, exact match
}

// Matches reports whether s satisfies every criterion.
func (f Filter) Matches(s sample.Sample) bool {
	if !f.Since.IsZero() && s.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && s.Timestamp.After(f.Until) {
		return false
	}
	if f.Category != "" && s.Score().Category != f.Category {
		return false
	}
	return true
}

// Validate rejects unknown categories and inverted ranges.
func (f Filter) Validate() error {
	if f.Category != "" && !scoring.ValidCategory(f.Category) {
		return fmt.Errorf("unknown category %q (must be one of: low, moderate, high)", f.Category)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return fmt.Errorf("--until (%s) is before --since (%s)",
			f.Until.Format(time.RFC3339), f.Since.Format(time.RFC3339))
	}
	return nil
}

// Apply returns the samples matching f, preserving order.
func Apply(samples []sample.Sample, f Filter) []sample.Sample {
	out := make([]sample.Sample, 0, len(samples))
	for _, s := range samples {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// ScoredSample is a sample together with its derived score. This is the
// shape every external rendering uses.
type ScoredSample struct {
	sample.Sample
	Score    float64          `json:"score"`
	Category scoring.Category `json:"category"`
}

// Scored derives the score of s.
func Scored(s sample.Sample) ScoredSample {
	result := s.Score()
	return ScoredSample{Sample: s, Score: result.Value, Category: result.Category}
}

// ScoreAll derives the score of every sample. The result is never nil.
func ScoreAll(samples []sample.Sample) []ScoredSample {
	out := make([]ScoredSample, 0, len(samples))
	for _, s := range samples {
		out = append(out, Scored(s))
	}
	return out
}
