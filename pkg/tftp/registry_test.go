package tftp

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id   uuid.UUID
	done chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: uuid.New(), done: make(chan struct{})}
}

func (s *fakeSession) ID() uuid.UUID         { return s.id }
func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) State() State {
	select {
	case <-s.done:
		return StateComplete
	default:
		return StateActive
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeSession(), newFakeSession()

	r.Add(a)
	r.Add(b)
	require.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []uuid.UUID{a.id, b.id}, r.IDs())

	got, ok := r.Get(a.id)
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = r.Get(uuid.New())
	assert.False(t, ok)

	assert.Equal(t, 0, r.Prune())

	close(a.done)
	assert.Equal(t, 1, r.Prune())
	_, ok = r.Get(a.id)
	assert.False(t, ok)

	r.Remove(b.id)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := newFakeSession()
			close(s.done)
			r.Add(s)
		}()
		go func() {
			defer wg.Done()
			r.Prune()
			r.Len()
		}()
	}
	wg.Wait()

	r.Prune()
	assert.Equal(t, 0, r.Len())
}
