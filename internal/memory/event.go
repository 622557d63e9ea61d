// Package memory defines the memory event data model shared by the
// retrieval pipeline and the stores that hold events between turns.
package memory

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Importance bounds.
const (
	MinImportance     = 1
	MaxImportance     = 5
	DefaultImportance = 3
)

// Event is a recorded memory event. Events are produced by an external
// extraction step; the retrieval pipeline treats every field except
// Embedding as read-only.
type Event struct {
	ID                 string    `json:"id"`
	Summary            string    `json:"summary"`
	Importance         int       `json:"importance"`
	MessageIDs         []int     `json:"message_ids"`
	Embedding          []float32 `json:"embedding,omitempty"`
	CharactersInvolved []string  `json:"characters_involved,omitempty"`
	Witnesses          []string  `json:"witnesses,omitempty"`
	IsSecret           bool      `json:"is_secret,omitempty"`
	Location           string    `json:"location,omitempty"`
	Sequence           int64     `json:"sequence"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewEvent builds a normalized event with a fresh ID.
func NewEvent(summary string, importance int, messageIDs ...int) *Event {
	e := &Event{
		Summary:    summary,
		Importance: importance,
		MessageIDs: messageIDs,
		CreatedAt:  time.Now().UTC(),
	}
	e.Normalize()
	return e
}

// Normalize fills defaults and clamps importance. It assigns an ID when
// none is set.
func (e *Event) Normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Importance = ClampImportance(e.Importance)
	if len(e.MessageIDs) == 0 {
		e.MessageIDs = []int{0}
	}
}

// ClampImportance maps 0 to DefaultImportance and clamps everything else
// into [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	switch {
	case v == 0:
		return DefaultImportance
	case v < MinImportance:
		return MinImportance
	case v > MaxImportance:
		return MaxImportance
	default:
		return v
	}
}

// LastMessageID returns the highest message position the event references.
func (e *Event) LastMessageID() int {
	if len(e.MessageIDs) == 0 {
		return 0
	}
	return slices.Max(e.MessageIDs)
}

// HasEmbedding reports whether an embedding is attached.
func (e *Event) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// AttachEmbedding sets the embedding if none is attached yet and reports
// whether it wrote. A second call is a no-op.
func (e *Event) AttachEmbedding(vec []float32) bool {
	if e.HasEmbedding() || len(vec) == 0 {
		return false
	}
	e.Embedding = slices.Clone(vec)
	return true
}

// VisibleTo reports whether the point-of-view character knows about the
// event. Public events are visible to everyone; secret events only to
// witnesses and involved characters. An empty pov sees everything.
func (e *Event) VisibleTo(pov string) bool {
	if pov == "" || !e.IsSecret {
		return true
	}
	return containsFold(e.Witnesses, pov) || containsFold(e.CharactersInvolved, pov)
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	c := *e
	c.MessageIDs = slices.Clone(e.MessageIDs)
	c.Embedding = slices.Clone(e.Embedding)
	c.CharactersInvolved = slices.Clone(e.CharactersInvolved)
	c.Witnesses = slices.Clone(e.Witnesses)
	return &c
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
