package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/tandem/pkg/sample"
	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Document names. Each backend stores exactly these two documents.
const (
	samplesDoc = "samples"
	cutoffDoc  = "cutoff"
)

// documentVersion is written into every samples document.
const documentVersion = 1

// errNoDocument is returned by a backend when a document was never written.
var errNoDocument = errors.New("document not found")

// backend persists whole named documents. Each write must be atomic: a reader
// sees either the previous document or the new one, never a mix.
type backend interface {
	read(name string) ([]byte, error)
	write(name string, data []byte) error
	close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string // file (default), bolt or sqlite
	Path    string // directory for file, database file for bolt and sqlite
	Logger  zerolog.Logger
}

// Store is a node's durable sample log plus its replication cutoff.
//
// The sample set is stored as one document and always rewritten whole.
// Store does not serialize callers: Append is a read-modify-write over the whole
// set, so concurrent writers must be serialized externally.
type Store struct {
	b   backend
	log zerolog.Logger
}

type samplesDocument struct {
	Version int             `json:"version"`
	Samples []sample.Sample `json:"samples"`
}

type cutoffDocument struct {
	Cutoff time.Time `json:"cutoff"`
}

// Open opens (creating if needed) the store described by opts.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}

	var (
		b   backend
		err error
	)
	switch opts.Backend {
	case "", BackendFile:
		b, err = openFileBackend(opts.Path)
	case BackendBolt:
		b, err = openBoltBackend(opts.Path)
	case BackendSQLite:
		b, err = openSQLiteBackend(opts.Path)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store at %s: %w", opts.Backend, opts.Path, err)
	}

	return &Store{
		b:   b,
		log: opts.Logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.close()
}

// LoadAll returns every stored sample sorted ascending by timestamp.
//
// It never fails: a missing or unreadable document yields an empty result, and
// individual invalid or duplicate samples are skipped, each with a warning.
func (s *Store) LoadAll() []sample.Sample {
	data, err := s.b.read(samplesDoc)
	if errors.Is(err, errNoDocument) {
		return []sample.Sample{}
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read sample log, treating as empty")
		return []sample.Sample{}
	}

	var doc samplesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn().Err(err).Msg("corrupt sample log, treating as empty")
		return []sample.Sample{}
	}

	samples := make([]sample.Sample, 0, len(doc.Samples))
	seen := make(map[string]struct{}, len(doc.Samples))
	for _, smp := range doc.Samples {
		if err := smp.Validate(); err != nil {
			s.log.Warn().Err(err).Msg("skipping invalid stored sample")
			continue
		}
		if _, dup := seen[smp.ID]; dup {
			s.log.Warn().Str("sample_id", smp.ID).Msg("skipping duplicate stored sample")
			continue
		}
		seen[smp.ID] = struct{}{}
		samples = append(samples, smp)
	}

	sample.Sort(samples)
	return samples
}

// SaveAll atomically replaces the whole persisted set.
// The caller's slice is not modified; the stored order is sorted by timestamp.
// Later duplicates of an ID are dropped.
func (s *Store) SaveAll(samples []sample.Sample) error {
	unique := sample.NotIn(samples, nil)
	sample.Sort(unique)
	if unique == nil {
		unique = []sample.Sample{}
	}

	data, err := json.Marshal(samplesDocument{Version: documentVersion, Samples: unique})
	if err != nil {
		return fmt.Errorf("failed to marshal sample log: %w", err)
	}

	if err := s.b.write(samplesDoc, data); err != nil {
		return fmt.Errorf("failed to write sample log: %w", err)
	}
	return nil
}

// Append adds one sample by loading the full set, adding it and saving.
// Appending an ID that is already stored is a no-op.
func (s *Store) Append(smp sample.Sample) error {
	if err := smp.Validate(); err != nil {
		return fmt.Errorf("invalid sample: %w", err)
	}

	all := s.LoadAll()
	if _, exists := sample.Find(all, smp.ID); exists {
		return nil
	}
	return s.SaveAll(append(all, smp))
}

// LoadCutoff returns the persisted cutoff, or the zero time if none is stored
// or it cannot be read.
func (s *Store) LoadCutoff() time.Time {
	data, err := s.b.read(cutoffDoc)
	if errors.Is(err, errNoDocument) {
		return time.Time{}
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cutoff, starting from zero")
		return time.Time{}
	}

	var doc cutoffDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn().Err(err).Msg("corrupt cutoff, starting from zero")
		return time.Time{}
	}
	return doc.Cutoff.UTC()
}

// SaveCutoff persists the cutoff.
func (s *Store) SaveCutoff(cutoff time.Time) error {
	data, err := json.Marshal(cutoffDocument{Cutoff: cutoff.UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal cutoff: %w", err)
	}
	if err := s.b.write(cutoffDoc, data); err != nil {
		return fmt.Errorf("failed to write cutoff: %w", err)
	}
	return nil
}
