// Package watch waits on a running replication endpoint for the CLI.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/tandem/internal/replication"
	"github.com/dyluth/tandem/pkg/sample"
)

// PollInterval is how often ForCatchUpAnswer checks the coordinator.
const PollInterval = 200 * time.Millisecond

// CatchUpSource exposes the catch-up coordinator. *replication.Endpoint
// implements it.
type CatchUpSource interface {
	CatchUp() replication.CatchUpStatus
}

// ForCatchUpAnswer polls until src has recorded more than after answered
// catch-ups, and returns the status at that point.
func ForCatchUpAnswer(ctx context.Context, src CatchUpSource, after int, timeout time.Duration) (replication.CatchUpStatus, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		if status := src.CatchUp(); status.Answered > after {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return replication.CatchUpStatus{}, ctx.Err()
		case <-timeoutCh:
			return src.CatchUp(), fmt.Errorf("timeout waiting for catch-up response after %v", timeout)
		case <-ticker.C:
		}
	}
}

// NewSamples reads snapshots from updates and calls emit, oldest first, for
// each sample that was not in the first snapshot received. It returns nil
// when updates is closed, ctx's error on cancellation, or emit's error.
func NewSamples(ctx context.Context, updates <-chan replication.Snapshot, emit func(sample.Sample) error) error {
	var seen map[string]struct{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if seen == nil {
				seen = sample.IDs(snap.Samples)
				continue
			}

			fresh := sample.NotIn(snap.Samples, seen)
			sample.Sort(fresh)
			for _, s := range fresh {
				seen[s.ID] = struct{}{}
				if err := emit(s); err != nil {
					return err
				}
			}
		}
	}
}

// FormatSample renders one arrival for the terminal.
func FormatSample(s sample.Sample) string {
	result := s.Score()
	return fmt.Sprintf("📥 New sample %s at %s: score=%.1f (%s) hrv=%s hr=%s sleep=%s",
		shortID(s.ID),
		s.Timestamp.UTC().Format(time.RFC3339),
		result.Value,
		result.Category,
		s.Inputs.HRV, s.Inputs.HeartRate, s.Inputs.SleepHours,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
