// Package store provides the durable, per-node sample log.
//
// A Store holds two documents: the ordered sample set and the replication
// cutoff. Both are rewritten whole on every save, through one of three
// interchangeable backends:
//
//   - file: a directory with samples.json and cutoff.json, replaced via
//     temp file, fsync and rename
//   - bolt: a bbolt database with one bucket
//   - sqlite: a SQLite database with a single documents table
//
// Reads fail soft. A node's store is a cache of what it has seen, so a missing
// or corrupt document reads as empty and the next successful save repairs it.
package store
