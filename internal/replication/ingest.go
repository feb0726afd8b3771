package replication

import (
	"context"

	"github.com/dyluth/tandem/pkg/relay"
	"github.com/dyluth/tandem/pkg/sample"
)

// Ingest merges samples received from the peer into the working set.
//
// Samples whose ID is already known are ignored, so ingestion is idempotent and
// order-independent. If anything is new, the whole set is saved and the cutoff
// advances to the newest incoming timestamp if that is later. A failed save is
// logged and the in-memory set keeps the new samples; the stored cutoff only
// moves once the samples behind it are on disk. Invalid samples are skipped.
func (e *Endpoint) Ingest(ctx context.Context, samples []sample.Sample) (IngestResult, error) {
	valid := make([]sample.Sample, 0, len(samples))
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			e.log.Warn().Err(err).Str("sample_id", s.ID).Msg("skipping invalid incoming sample")
			continue
		}
		valid = append(valid, s)
	}

	var (
		res     IngestResult
		snap    Snapshot
		changed bool
	)
	err := e.exec(ctx, func() {
		fresh := sample.NotIn(valid, sample.IDs(e.working))
		res.Cutoff = e.cutoff
		if len(fresh) == 0 {
			return
		}

		sample.Sort(fresh)
		e.working = append(e.working, fresh...)
		sample.Sort(e.working)

		if newest := sample.Latest(fresh); newest.After(e.cutoff) {
			e.cutoff = newest
			res.Advanced = true
		}
		e.persistLocked()

		res.Added = fresh
		res.Cutoff = e.cutoff
		snap = e.snapshotLocked()
		changed = true
	})
	if err != nil {
		return IngestResult{}, err
	}

	if changed {
		e.publish(snap)
		e.logEvent("samples_ingested", map[string]interface{}{
			"received": len(samples),
			"added":    len(res.Added),
			"cutoff":   formatTime(res.Cutoff),
			"advanced": res.Advanced,
		})
	}
	return res, nil
}

// persistLocked saves the working set and then, only if that succeeded, a
// cutoff that is ahead of the stored one. Writer goroutine only.
func (e *Endpoint) persistLocked() {
	if err := e.store.SaveAll(e.working); err != nil {
		e.log.Error().Err(err).
			Int("samples", len(e.working)).
			Str("stored_cutoff", formatTime(e.storedCutoff)).
			Msg("failed to persist samples, stored cutoff left unchanged")
		return
	}
	if !e.cutoff.After(e.storedCutoff) {
		return
	}
	if err := e.store.SaveCutoff(e.cutoff); err != nil {
		e.log.Error().Err(err).Msg("failed to persist cutoff")
		return
	}
	e.storedCutoff = e.cutoff
}

// handlePayload decodes and routes one payload from the transport. Payloads
// that fail to decode are logged and dropped.
func (e *Endpoint) handlePayload(tier relay.Tier, payload []byte) {
	env, err := relay.Decode(payload)
	if err != nil {
		e.logEvent("payload_dropped", map[string]interface{}{
			"tier":  string(tier),
			"bytes": len(payload),
			"error": err.Error(),
		})
		return
	}

	ctx := e.context()

	if incoming := env.Incoming(); len(incoming) > 0 || env.HasBatch() {
		if _, err := e.Ingest(ctx, incoming); err != nil {
			e.log.Warn().Err(err).Str("tier", string(tier)).Msg("failed to ingest payload")
		}
		if env.HasBatch() {
			e.catchUp.answered(e.clock())
		}
	}

	if env.Since != nil {
		e.answerCatchUp(*env.Since)
	}
}
