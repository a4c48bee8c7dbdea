// Package transferlog keeps a record of every finished transfer session.
package transferlog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no entry exists for the given id.
var ErrNotFound = errors.New("transfer entry not found")

// Entry describes one finished transfer session.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Role        string    `json:"role"`
	Filename    string    `json:"filename"`
	Peer        string    `json:"peer"`
	State       string    `json:"state"`
	Blocks      int       `json:"blocks"`
	Bytes       int       `json:"bytes"`
	Retransmits int       `json:"retransmits"`
	Error       string    `json:"error,omitempty"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
}

// Store stores transfer entries.
type Store interface {
	Record(entry *Entry) error
	Entry(id uuid.UUID) (*Entry, error)
	// Entries returns all entries, oldest first.
	Entries() ([]*Entry, error)
	Close() error
}

// NewStore returns a Store of the given kind. Location is ignored for "memory".
func NewStore(kind, location string) (Store, error) {
	switch kind {
	case "", "memory":
		return InMemoryStore(), nil
	case "bbolt":
		return NewBoltStore(location)
	default:
		return nil, fmt.Errorf("no transfer log store of type %s", kind)
	}
}

type inMemoryStore struct {
	entries map[uuid.UUID]*Entry
	mu      sync.Mutex
}

// InMemoryStore implements in-memory Store.
func InMemoryStore() Store {
	return &inMemoryStore{
		entries: map[uuid.UUID]*Entry{},
	}
}

func (s *inMemoryStore) Record(entry *Entry) error {
	s.mu.Lock()
	e := *entry
	s.entries[entry.ID] = &e
	s.mu.Unlock()
	return nil
}

func (s *inMemoryStore) Entry(id uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	e := *entry
	return &e, nil
}

func (s *inMemoryStore) Entries() ([]*Entry, error) {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		e := *entry
		entries = append(entries, &e)
	}
	s.mu.Unlock()

	sortEntries(entries)
	return entries, nil
}

func (s *inMemoryStore) Close() error { return nil }

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Started.Before(entries[j].Started)
	})
}
