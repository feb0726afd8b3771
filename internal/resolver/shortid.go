// Package resolver maps the short sample IDs shown by `tandem list` back to
// full samples.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/tandem/pkg/sample"
	"github.com/google/uuid"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Resolve finds the one sample whose ID is id or starts with it.
// Matching is case-insensitive.
func Resolve(samples []sample.Sample, id string) (sample.Sample, error) {
	id = strings.ToLower(strings.TrimSpace(id))

	if _, err := uuid.Parse(id); err == nil && len(id) == 36 {
		if s, ok := sample.Find(samples, id); ok {
			return s, nil
		}
		return sample.Sample{}, &NotFoundError{ShortID: id}
	}

	if len(id) < MinShortIDLength {
		return sample.Sample{}, fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(id))
	}

	var matches []sample.Sample
	for _, s := range samples {
		if strings.HasPrefix(strings.ToLower(s.ID), id) {
			matches = append(matches, s)
		}
	}

	switch len(matches) {
	case 0:
		return sample.Sample{}, &NotFoundError{ShortID: id}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return sample.Sample{}, &AmbiguousError{ShortID: id, Matches: ids}
	}
}

// NotFoundError indicates no sample matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no samples found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple samples matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d samples", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d samples:\n", err.ShortID, len(err.Matches))

	shown := err.Matches
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, id := range shown {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the sample.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
