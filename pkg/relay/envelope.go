package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dyluth/tandem/pkg/sample"
)

// Envelope keys. Any tier may carry any of them, and one envelope may carry several.
const (
	KeyNewSample           = "newSample"
	KeyBatch               = "samples"
	KeyRequestSamplesSince = "requestSamplesSince"
)

// ErrUnrecognisedEnvelope is returned when a payload carries none of the known keys.
var ErrUnrecognisedEnvelope = errors.New("envelope has no recognised key")

// Envelope is a decoded replication payload.
type Envelope struct {
	NewSample *sample.Sample  // single freshly produced sample
	Samples   []sample.Sample // batch (catch-up response or full push); see HasBatch
	Since     *time.Time      // catch-up request cutoff

	batch bool
}

// NewSampleEnvelope wraps a single sample.
func NewSampleEnvelope(s sample.Sample) Envelope {
	return Envelope{NewSample: &s}
}

// BatchEnvelope wraps a batch of samples. An empty batch is still a batch.
func BatchEnvelope(samples []sample.Sample) Envelope {
	if samples == nil {
		samples = []sample.Sample{}
	}
	return Envelope{Samples: samples, batch: true}
}

// CatchUpRequest asks the peer for every sample newer than since.
func CatchUpRequest(since time.Time) Envelope {
	s := sample.NormalizeTime(since)
	return Envelope{Since: &s}
}

// HasBatch reports whether the envelope carries a samples batch, even an empty one.
func (e Envelope) HasBatch() bool {
	return e.batch
}

// Incoming returns every sample carried by the envelope.
func (e Envelope) Incoming() []sample.Sample {
	var out []sample.Sample
	if e.NewSample != nil {
		out = append(out, *e.NewSample)
	}
	return append(out, e.Samples...)
}

// Encode serializes the envelope to its JSON wire form.
func Encode(e Envelope) ([]byte, error) {
	fields := make(map[string]interface{}, 3)

	if e.NewSample != nil {
		fields[KeyNewSample] = e.NewSample
	}
	if e.batch {
		fields[KeyBatch] = e.Samples
	}
	if e.Since != nil {
		fields[KeyRequestSamplesSince] = EpochSeconds(*e.Since)
	}

	if len(fields) == 0 {
		return nil, ErrUnrecognisedEnvelope
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses and validates a wire payload.
// Unknown keys are ignored; a payload with no known key is rejected.
func Decode(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	var e Envelope
	recognised := false

	if raw, ok := fields[KeyNewSample]; ok {
		recognised = true
		var s sample.Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return Envelope{}, fmt.Errorf("failed to unmarshal %s: %w", KeyNewSample, err)
		}
		if err := s.Validate(); err != nil {
			return Envelope{}, fmt.Errorf("invalid %s: %w", KeyNewSample, err)
		}
		e.NewSample = &s
	}

	if raw, ok := fields[KeyBatch]; ok {
		recognised = true
		var samples []sample.Sample
		if err := json.Unmarshal(raw, &samples); err != nil {
			return Envelope{}, fmt.Errorf("failed to unmarshal %s: %w", KeyBatch, err)
		}
		for i, s := range samples {
			if err := s.Validate(); err != nil {
				return Envelope{}, fmt.Errorf("invalid sample at index %d: %w", i, err)
			}
		}
		e.Samples = samples
		if e.Samples == nil {
			e.Samples = []sample.Sample{}
		}
		e.batch = true
	}

	if raw, ok := fields[KeyRequestSamplesSince]; ok {
		recognised = true
		var secs float64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return Envelope{}, fmt.Errorf("failed to unmarshal %s: %w", KeyRequestSamplesSince, err)
		}
		since := FromEpochSeconds(secs)
		e.Since = &since
	}

	if !recognised {
		return Envelope{}, ErrUnrecognisedEnvelope
	}
	return e, nil
}

// EpochSeconds converts t to fractional seconds since the Unix epoch at
// millisecond resolution. The zero time encodes as 0.
func EpochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli()) / 1000
}

// FromEpochSeconds is the inverse of EpochSeconds. Values <= 0 decode to the zero time.
func FromEpochSeconds(secs float64) time.Time {
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}
	}
	return time.UnixMilli(int64(math.Round(secs * 1000))).UTC()
}
