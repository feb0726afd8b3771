// Package replication keeps two nodes' sample sets convergent.
//
// An Endpoint owns a node's in-memory working set and its Store. It produces
// local samples and pushes them to the peer over the best available transport
// tier, ingests samples from the peer idempotently, and tracks a cutoff: the
// newest peer timestamp it has ingested. On activation and whenever the peer
// becomes reachable it asks the peer for everything newer than the cutoff.
//
// Convergence guarantees:
//   - ingesting the same sample twice has no effect
//   - ingestion order does not change the resulting set
//   - the cutoff never moves backwards
//   - a catch-up answer contains exactly the samples strictly newer than the
//     requested instant, and answering never changes the answerer's cutoff
package replication
