package store

import (
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketDocuments = []byte("documents")

// boltBackend stores documents as values in a single bbolt bucket.
// Every write is its own transaction.
type boltBackend struct {
	db *bbolt.DB
}

func openBoltBackend(path string) (*boltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltBackend{db: db}, nil
}

func (b *boltBackend) read(name string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(name))
		if v == nil {
			return errNoDocument
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (b *boltBackend) write(name string, data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(name), data)
	})
}

func (b *boltBackend) close() error {
	return b.db.Close()
}
