package replication

import (
	"context"
	"time"

	"github.com/dyluth/tandem/pkg/relay"
	"github.com/dyluth/tandem/pkg/sample"
)

// Transport is the capability an endpoint needs from a peer link.
// *relay.Transport implements it over Redis; Loopback implements it in memory.
type Transport interface {
	// SendRealtime delivers payload only if the peer is connected right now.
	// It returns immediately; onFailure is called if delivery fails. No retry.
	SendRealtime(ctx context.Context, payload []byte, onFailure func(error))

	// EnqueueReliable queues payload for eventual, ordered delivery.
	EnqueueReliable(ctx context.Context, payload []byte) error

	// PublishSnapshot replaces the peer's latest-state blob.
	PublishSnapshot(ctx context.Context, payload []byte) error

	// OnReachabilityChanged and OnPayloadReceived register callbacks before Start.
	OnReachabilityChanged(fn func(reachable bool))
	OnPayloadReceived(fn func(tier relay.Tier, payload []byte))

	Start(ctx context.Context) error
	Close() error
}

// SampleStore is the persistence an endpoint needs. *store.Store implements it.
type SampleStore interface {
	LoadAll() []sample.Sample
	SaveAll(samples []sample.Sample) error
	LoadCutoff() time.Time
	SaveCutoff(cutoff time.Time) error
}

var _ Transport = (*relay.Transport)(nil)
