package transferlog

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var transfersBucket = []byte("transfers")

type boltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) a bbolt database at path.
func NewBoltStore(path string) (Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(transfersBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %s", err)
		}
		return nil
	})
	if err != nil {
		db.Close() // nolint
		return nil, err
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Record(entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("json: %s", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(transfersBucket).Put(entry.ID[:], raw)
	})
}

func (s *boltStore) Entry(id uuid.UUID) (*Entry, error) {
	entry := &Entry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(transfersBucket).Get(id[:])
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *boltStore) Entries() ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(transfersBucket).ForEach(func(_, raw []byte) error {
			entry := &Entry{}
			if err := json.Unmarshal(raw, entry); err != nil {
				return fmt.Errorf("json: %s", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortEntries(entries)
	return entries, nil
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
