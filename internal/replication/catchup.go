package replication

import (
	"context"
	"sync"
	"time"

	"github.com/dyluth/tandem/pkg/relay"
	"github.com/dyluth/tandem/pkg/sample"
)

// CatchUpState tracks whether this node is waiting on a catch-up response.
//
// There is no timeout. Requested means a request is outstanding and its
// answer may have been lost; the next trigger counts it as lost, returns to
// Idle and issues a fresh request.
type CatchUpState string

const (
	CatchUpIdle      CatchUpState = "idle"
	CatchUpRequested CatchUpState = "requested"
)

// CatchUpStatus is a point-in-time view of the catch-up coordinator.
type CatchUpStatus struct {
	State         CatchUpState `json:"state"`
	Requests      int          `json:"requests"`
	Answered      int          `json:"answered"`
	Lost          int          `json:"lost"`
	LastRequested time.Time    `json:"last_requested"`
	LastAnswered  time.Time    `json:"last_answered"`
}

type catchUpTracker struct {
	mu     sync.Mutex
	status CatchUpStatus
}

// requested records a new request. It reports whether an earlier request was
// still outstanding, which is then counted as lost.
func (c *catchUpTracker) requested(at time.Time) (lost bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State == CatchUpRequested {
		c.status.Lost++
		lost = true
	}
	c.status.State = CatchUpRequested
	c.status.Requests++
	c.status.LastRequested = at
	return lost
}

func (c *catchUpTracker) answered(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = CatchUpIdle
	c.status.Answered++
	c.status.LastAnswered = at
}

func (c *catchUpTracker) snapshot() CatchUpStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	if s.State == "" {
		s.State = CatchUpIdle
	}
	return s
}

// CatchUp returns the catch-up coordinator's status.
func (e *Endpoint) CatchUp() CatchUpStatus {
	return e.catchUp.snapshot()
}

// RequestCatchUp asks the peer for every sample newer than this node's cutoff.
func (e *Endpoint) RequestCatchUp(ctx context.Context) error {
	if e.State() != StateActive {
		return ErrNotActive
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cutoff := e.Cutoff()
	if e.catchUp.requested(e.clock()) {
		e.logEvent("catchup_lost", map[string]interface{}{
			"since": formatTime(cutoff),
		})
	}
	if err := e.send(relay.CatchUpRequest(cutoff)); err != nil {
		return err
	}

	e.logEvent("catchup_requested", map[string]interface{}{
		"since":     formatTime(cutoff),
		"reachable": e.reachable.Load(),
	})
	return nil
}

// answerCatchUp sends the peer every local sample strictly newer than since.
// It always answers, even with an empty batch, and never touches the local
// cutoff.
func (e *Endpoint) answerCatchUp(since time.Time) {
	batch := sample.After(e.Snapshot().Samples, since)

	if err := e.send(relay.BatchEnvelope(batch)); err != nil {
		e.log.Error().Err(err).Msg("failed to answer catch-up request")
		return
	}

	e.logEvent("catchup_answered", map[string]interface{}{
		"since":   formatTime(since),
		"samples": len(batch),
	})
}
