package memory

import (
	"context"
	"errors"
)

// ErrEventNotFound indicates the requested event does not exist.
var ErrEventNotFound = errors.New("memory: event not found")

// Store holds memory events between retrieval calls.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put inserts an event or updates the stored one with the same ID.
	// A zero Sequence is assigned on insert and kept on update; a nil
	// Embedding keeps the stored vector.
	Put(ctx context.Context, ev *Event) error

	// Get returns the event with the given ID or ErrEventNotFound.
	Get(ctx context.Context, id string) (*Event, error)

	// List returns every event ordered by Sequence.
	List(ctx context.Context) ([]*Event, error)

	// MissingEmbeddings returns up to limit events without an embedding,
	// ordered by Sequence. limit <= 0 means no limit.
	MissingEmbeddings(ctx context.Context, limit int) ([]*Event, error)

	// AttachEmbedding stores vec on the event if it has none yet. It
	// reports whether anything was written.
	AttachEmbedding(ctx context.Context, id string, vec []float32) (bool, error)

	// Delete removes an event by ID.
	Delete(ctx context.Context, id string) error

	// Len returns the number of stored events.
	Len() int
}
