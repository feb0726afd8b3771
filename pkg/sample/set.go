package sample

import (
	"sort"
	"time"
)

// Sort orders samples ascending by timestamp, breaking ties by ID so that the
// order is identical on every node. Sorts in place.
func Sort(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

// IDs returns the set of sample IDs.
func IDs(samples []Sample) map[string]struct{} {
	ids := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		ids[s.ID] = struct{}{}
	}
	return ids
}

// NotIn returns the samples whose ID is not in existing, dropping repeats
// within incoming as well. Input order is preserved.
func NotIn(incoming []Sample, existing map[string]struct{}) []Sample {
	seen := make(map[string]struct{}, len(incoming))
	var fresh []Sample
	for _, s := range incoming {
		if _, ok := existing[s.ID]; ok {
			continue
		}
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		fresh = append(fresh, s)
	}
	return fresh
}

// After returns the samples strictly newer than cutoff, in input order.
func After(samples []Sample, cutoff time.Time) []Sample {
	var out []Sample
	for _, s := range samples {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Latest returns the greatest timestamp among samples, or the zero time if empty.
func Latest(samples []Sample) time.Time {
	var latest time.Time
	for _, s := range samples {
		if s.Timestamp.After(latest) {
			latest = s.Timestamp
		}
	}
	return latest
}

// Find returns the sample with the given ID.
func Find(samples []Sample, id string) (Sample, bool) {
	for _, s := range samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}
