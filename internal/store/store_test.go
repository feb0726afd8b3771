package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/tandem/pkg/sample"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

var backends = []string{BackendFile, BackendBolt, BackendSQLite}

// openTestStore opens a fresh store of the given backend in a temp directory
func openTestStore(t *testing.T, backend string) (*Store, Options) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "node")
	if backend != BackendFile {
		path = filepath.Join(path, "samples.db")
	}
	opts := Options{Backend: backend, Path: path, Logger: zerolog.Nop()}

	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, opts
}

func newSample(offset time.Duration, hrv float64) sample.Sample {
	return sample.New(t0.Add(offset), sample.RawInputs{HRV: sample.Some(hrv)})
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Options{Backend: BackendFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path cannot be empty")

	_, err = Open(Options{Backend: "etcd", Path: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestStore_AllBackends(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Run("empty store", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				assert.Empty(t, s.LoadAll())
				assert.NotNil(t, s.LoadAll())
				assert.True(t, s.LoadCutoff().IsZero())
			})

			t.Run("save and load sorted", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				a, b, c := newSample(0, 10), newSample(time.Minute, 20), newSample(2*time.Minute, 30)

				input := []sample.Sample{c, a, b}
				require.NoError(t, s.SaveAll(input))

				assert.Equal(t, []sample.Sample{a, b, c}, s.LoadAll())
				assert.Equal(t, []sample.Sample{c, a, b}, input, "caller slice untouched")
			})

			t.Run("save replaces whole set", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				a, b := newSample(0, 10), newSample(time.Minute, 20)

				require.NoError(t, s.SaveAll([]sample.Sample{a, b}))
				require.NoError(t, s.SaveAll([]sample.Sample{b}))
				assert.Equal(t, []sample.Sample{b}, s.LoadAll())
			})

			t.Run("save drops duplicate IDs", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				a := newSample(0, 10)

				require.NoError(t, s.SaveAll([]sample.Sample{a, a}))
				assert.Len(t, s.LoadAll(), 1)
			})

			t.Run("append is idempotent", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				a, b := newSample(time.Minute, 10), newSample(0, 20)

				require.NoError(t, s.Append(a))
				require.NoError(t, s.Append(b))
				require.NoError(t, s.Append(a))

				assert.Equal(t, []sample.Sample{b, a}, s.LoadAll())
			})

			t.Run("append rejects invalid sample", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				err := s.Append(sample.Sample{ID: "bad"})
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid sample")
			})

			t.Run("cutoff round trip", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				cutoff := t0.Add(90 * time.Second)

				require.NoError(t, s.SaveCutoff(cutoff))
				assert.Equal(t, cutoff, s.LoadCutoff())
			})

			t.Run("persists across reopen", func(t *testing.T) {
				s, opts := openTestStore(t, backend)
				a := newSample(0, 10)
				require.NoError(t, s.Append(a))
				require.NoError(t, s.SaveCutoff(a.Timestamp))
				require.NoError(t, s.Close())

				reopened, err := Open(opts)
				require.NoError(t, err)
				defer reopened.Close()

				assert.Equal(t, []sample.Sample{a}, reopened.LoadAll())
				assert.Equal(t, a.Timestamp, reopened.LoadCutoff())
			})

			t.Run("corrupt documents read as empty", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				require.NoError(t, s.b.write(samplesDoc, []byte("{not json")))
				require.NoError(t, s.b.write(cutoffDoc, []byte("[]")))

				assert.Empty(t, s.LoadAll())
				assert.True(t, s.LoadCutoff().IsZero())

				// The next save repairs the document
				a := newSample(0, 10)
				require.NoError(t, s.Append(a))
				assert.Equal(t, []sample.Sample{a}, s.LoadAll())
			})

			t.Run("invalid stored samples are skipped", func(t *testing.T) {
				s, _ := openTestStore(t, backend)
				a := newSample(0, 10)
				doc := `{"version":1,"samples":[` +
					`{"id":"not-a-uuid","timestamp":"2026-02-01T08:00:00Z","inputs":{}},` +
					`{"id":"` + a.ID + `","timestamp":"2026-02-01T08:00:00Z","inputs":{"hrv":10}}]}`
				require.NoError(t, s.b.write(samplesDoc, []byte(doc)))

				assert.Equal(t, []sample.Sample{a}, s.LoadAll())
			})
		})
	}
}

// TestFileBackend_AtomicWrite tests that no temporary files are left behind
// and that the document is replaced rather than appended to
func TestFileBackend_AtomicWrite(t *testing.T) {
	s, opts := openTestStore(t, BackendFile)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(newSample(time.Duration(i)*time.Second, float64(i))))
	}

	entries, err := os.ReadDir(opts.Path)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"samples.json"}, names)
	assert.Len(t, s.LoadAll(), 5)
}

// TestBoltBackend_Locked tests that a second process cannot open the same bolt file
func TestBoltBackend_Locked(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the bolt lock timeout")
	}

	path := filepath.Join(t.TempDir(), "locked.db")
	first, err := openBoltBackend(path)
	require.NoError(t, err)
	defer first.close()

	_, err = openBoltBackend(path)
	assert.Error(t, err)
}
