package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileBackend keeps each document in its own JSON file inside a directory.
type fileBackend struct {
	dir string
}

func openFileBackend(dir string) (*fileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{dir: dir}, nil
}

func (f *fileBackend) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

func (f *fileBackend) read(name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoDocument
	}
	return data, err
}

func (f *fileBackend) write(name string, data []byte) error {
	return writeFileAtomic(f.path(name), data, 0o644)
}

func (f *fileBackend) close() error {
	return nil
}

// writeFileAtomic replaces filename with data so that no reader ever sees a
// zero-length or incomplete file: the data goes to a temporary file in the same
// directory, is synced to stable storage, then renamed over the target.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir, name := filepath.Split(filename)
	tmpfile, err := os.CreateTemp(dir, fmt.Sprintf("%s-*.tmp", name))
	if err != nil {
		return err
	}

	// Make sure it gets closed and removed regardless of outcome.
	// After a successful rename the remove is a harmless no-op.
	tmpname := tmpfile.Name()
	defer func() {
		tmpfile.Close()
		os.Remove(tmpname)
	}()

	n, err := tmpfile.Write(data)
	if err != nil {
		return err
	}
	if n < len(data) {
		return errors.New("short write")
	}

	if err := tmpfile.Chmod(perm); err != nil {
		return err
	}
	if err := tmpfile.Sync(); err != nil {
		return err
	}
	if err := tmpfile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpname, filename)
}
