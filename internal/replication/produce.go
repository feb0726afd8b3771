package replication

import (
	"context"
	"fmt"

	"github.com/dyluth/tandem/internal/acquisition"
	"github.com/dyluth/tandem/pkg/relay"
	"github.com/dyluth/tandem/pkg/sample"
)

// Produce acquires one set of readings, records a new local sample and pushes
// it to the peer.
//
// A provider error is logged and the sample is recorded with every reading
// absent. A failed save is logged; the sample stays in memory and is still
// pushed. Producing never moves the cutoff, but a successful save also stores
// a cutoff left behind by an earlier failed save.
func (e *Endpoint) Produce(ctx context.Context, provider acquisition.Provider) (sample.Sample, error) {
	if e.State() != StateActive {
		return sample.Sample{}, ErrNotActive
	}

	inputs, err := provider.Acquire(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("acquisition failed, recording sample without readings")
		inputs = sample.RawInputs{}
	}
	if err := inputs.Validate(); err != nil {
		return sample.Sample{}, fmt.Errorf("invalid readings: %w", err)
	}

	s := sample.New(e.clock(), inputs)

	var snap Snapshot
	err = e.exec(ctx, func() {
		e.working = append(e.working, s)
		sample.Sort(e.working)
		e.persistLocked()
		snap = e.snapshotLocked()
	})
	if err != nil {
		return sample.Sample{}, err
	}
	e.publish(snap)

	result := s.Score()
	e.logEvent("sample_produced", map[string]interface{}{
		"sample_id": s.ID,
		"timestamp": formatTime(s.Timestamp),
		"score":     result.Value,
		"category":  string(result.Category),
		"readings":  inputs.Present(),
	})

	env := relay.NewSampleEnvelope(s)
	if err := e.send(env); err != nil {
		e.log.Error().Err(err).Str("sample_id", s.ID).Msg("failed to push sample")
	}
	if e.snapshots {
		e.publishLatest(env)
	}
	return s, nil
}

// PushAll sends the whole working set to the peer as one batch.
func (e *Endpoint) PushAll(ctx context.Context) error {
	if e.State() != StateActive {
		return ErrNotActive
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	samples := e.Snapshot().Samples
	if err := e.send(relay.BatchEnvelope(samples)); err != nil {
		return fmt.Errorf("failed to push working set: %w", err)
	}

	e.logEvent("working_set_pushed", map[string]interface{}{
		"samples": len(samples),
	})
	return nil
}

func (e *Endpoint) publishLatest(env relay.Envelope) {
	payload, err := relay.Encode(env)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to encode latest-state payload")
		return
	}
	if err := e.transport.PublishSnapshot(e.context(), payload); err != nil {
		e.log.Warn().Err(err).Msg("failed to publish latest state")
	}
}
