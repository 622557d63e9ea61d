package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vadash/openvault-sub001/internal/memory"
)

// Store is a memory.Store backed by a SQLite events table.
type Store struct {
	db *sql.DB
}

const eventColumns = `id, seq, summary, importance, message_ids, embedding,
	characters_involved, witnesses, is_secret, location, created_at`

// Put inserts an event or updates the stored one with the same ID. A zero
// Sequence is assigned the next value after the current maximum on insert
// and keeps the stored value on update. A nil Embedding keeps the stored
// vector, as does a zero CreatedAt.
func (s *Store) Put(ctx context.Context, ev *memory.Event) error {
	c := ev.Clone()
	c.Normalize()

	messageIDs, err := json.Marshal(c.MessageIDs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal message_ids: %w", err)
	}
	characters, err := marshalStrings(c.CharactersInvolved)
	if err != nil {
		return err
	}
	witnesses, err := marshalStrings(c.Witnesses)
	if err != nil {
		return err
	}
	embedding, err := encodeVector(c.Embedding)
	if err != nil {
		return err
	}
	keepCreated := c.CreatedAt.IsZero()
	if keepCreated {
		c.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, CASE WHEN ? > 0 THEN ? ELSE COALESCE((SELECT MAX(seq) FROM events), 0) + 1 END,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq                 = CASE WHEN ? > 0 THEN excluded.seq ELSE events.seq END,
			summary             = excluded.summary,
			importance          = excluded.importance,
			message_ids         = excluded.message_ids,
			embedding           = COALESCE(excluded.embedding, events.embedding),
			characters_involved = excluded.characters_involved,
			witnesses           = excluded.witnesses,
			is_secret           = excluded.is_secret,
			location            = excluded.location,
			created_at          = CASE WHEN ? THEN events.created_at ELSE excluded.created_at END`,
		c.ID, c.Sequence, c.Sequence,
		c.Summary, c.Importance, string(messageIDs), embedding,
		characters, witnesses, boolToInt(c.IsSecret), c.Location,
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.Sequence, boolToInt(keepCreated),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put event: %w", err)
	}
	return nil
}

// Get returns the event with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*memory.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrEventNotFound
	}
	return ev, err
}

// List returns every event ordered by sequence.
func (s *Store) List(ctx context.Context) ([]*memory.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	return scanEvents(rows)
}

// MissingEmbeddings returns up to limit events without an embedding.
func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]*memory.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE embedding IS NULL
		ORDER BY seq, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list missing embeddings: %w", err)
	}
	return scanEvents(rows)
}

// AttachEmbedding writes vec only when the event has no embedding yet.
func (s *Store) AttachEmbedding(ctx context.Context, id string, vec []float32) (bool, error) {
	if len(vec) == 0 {
		return false, nil
	}
	blob, err := encodeVector(vec)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE events SET embedding = ? WHERE id = ? AND embedding IS NULL`, blob, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: attach embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: attach embedding: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, memory.ErrEventNotFound
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: attach embedding: %w", err)
	}
	return false, nil
}

// Delete removes an event by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete event: %w", err)
	}
	if n == 0 {
		return memory.ErrEventNotFound
	}
	return nil
}

// Len returns the number of stored events, or 0 when the count fails.
func (s *Store) Len() int {
	var n int
	if err := s.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (*memory.Event, error) {
	var (
		ev         memory.Event
		messageIDs string
		embedding  []byte
		characters string
		witnesses  string
		isSecret   int
		createdAt  string
	)
	err := sc.Scan(&ev.ID, &ev.Sequence, &ev.Summary, &ev.Importance, &messageIDs, &embedding,
		&characters, &witnesses, &isSecret, &ev.Location, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan event: %w", err)
	}

	if err := json.Unmarshal([]byte(messageIDs), &ev.MessageIDs); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal message_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(characters), &ev.CharactersInvolved); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal characters_involved: %w", err)
	}
	if err := json.Unmarshal([]byte(witnesses), &ev.Witnesses); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal witnesses: %w", err)
	}
	if ev.Embedding, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	ev.IsSecret = isSecret != 0
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		ev.CreatedAt = t
	}
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*memory.Event, error) {
	defer func() { _ = rows.Close() }()

	var out []*memory.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan rows: %w", err)
	}
	return out, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal list: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
