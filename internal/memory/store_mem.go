package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
// Returned events are copies; callers cannot mutate stored state.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	index  map[string]int // id → index in events slice
}

// NewInMemoryStore creates a new empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		index: make(map[string]int),
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Put inserts an event or updates the stored one with the same ID. A zero
// Sequence is assigned after the current maximum on insert and kept on
// update. A nil Embedding or zero CreatedAt keeps the stored value.
func (s *InMemoryStore) Put(_ context.Context, ev *Event) error {
	c := ev.Clone()
	c.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, exists := s.index[c.ID]; exists {
		old := s.events[idx]
		if c.Sequence == 0 {
			c.Sequence = old.Sequence
		}
		if len(c.Embedding) == 0 {
			c.Embedding = old.Embedding
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = old.CreatedAt
		}
		s.events[idx] = c
		return nil
	}
	if c.Sequence == 0 {
		for _, e := range s.events {
			c.Sequence = max(c.Sequence, e.Sequence)
		}
		c.Sequence++
	}
	s.index[c.ID] = len(s.events)
	s.events = append(s.events, c)
	return nil
}

// Get returns a copy of the event with the given ID.
func (s *InMemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return s.events[idx].Clone(), nil
}

// List returns copies of all events ordered by Sequence.
func (s *InMemoryStore) List(_ context.Context) ([]*Event, error) {
	s.mu.RLock()
	out := make([]*Event, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Clone()
	}
	s.mu.RUnlock()

	sortBySequence(out)
	return out, nil
}

// MissingEmbeddings returns up to limit events without an embedding.
func (s *InMemoryStore) MissingEmbeddings(ctx context.Context, limit int) ([]*Event, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Event
	for _, ev := range all {
		if ev.HasEmbedding() {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AttachEmbedding attaches vec to the stored event if it has none.
func (s *InMemoryStore) AttachEmbedding(_ context.Context, id string, vec []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return false, ErrEventNotFound
	}
	return s.events[idx].AttachEmbedding(vec), nil
}

// Delete removes an event by ID.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return ErrEventNotFound
	}

	// Replace with last element and shrink (swap-delete).
	last := len(s.events) - 1
	if idx != last {
		s.events[idx] = s.events[last]
		s.index[s.events[idx].ID] = idx
	}
	s.events = s.events[:last]
	delete(s.index, id)

	return nil
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func sortBySequence(events []*Event) {
	slices.SortStableFunc(events, func(a, b *Event) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}
