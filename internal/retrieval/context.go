package retrieval

import (
	"errors"
	"fmt"

	"github.com/vadash/openvault-sub001/internal/memory"
)

// ErrInvalidContext is wrapped by every Context validation failure.
var ErrInvalidContext = errors.New("retrieval: invalid retrieval context")

// Context is the per-call parameter bundle of a retrieval.
type Context struct {
	// RecentMessages is the recent dialogue, oldest first.
	RecentMessages []string `json:"recent_messages"`
	// UserText is the recent user-only text used for lexical matching.
	UserText string `json:"user_text"`
	// ChatLength is the current conversation length in messages.
	ChatLength int `json:"chat_length"`
	// POV is the point-of-view character.
	POV string `json:"pov,omitempty"`
	// ActiveCharacters are always treated as salient entities.
	ActiveCharacters []string `json:"active_characters,omitempty"`

	Stage1Budget int  `json:"stage1_budget"`
	Stage2Budget int  `json:"stage2_budget"`
	Smart        bool `json:"smart"`

	// MemoriesChanged reports that the candidate set was edited since the
	// previous call, forcing caching scorers to refresh.
	MemoriesChanged bool `json:"memories_changed,omitempty"`
}

// Validate reports contract violations. A zero budget is valid and yields
// an empty result.
func (c Context) Validate() error {
	var errs []error
	if c.ChatLength < 0 {
		errs = append(errs, fmt.Errorf("chat_length must not be negative, got %d", c.ChatLength))
	}
	if c.Stage1Budget < 0 {
		errs = append(errs, fmt.Errorf("stage1_budget must not be negative, got %d", c.Stage1Budget))
	}
	if c.Stage2Budget < 0 {
		errs = append(errs, fmt.Errorf("stage2_budget must not be negative, got %d", c.Stage2Budget))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidContext, errors.Join(errs...))
}

// InferChatLength returns one past the highest message ID referenced by
// events, for callers that do not track the conversation length.
func InferChatLength(events []*memory.Event) int {
	n := 0
	for _, ev := range events {
		if id := ev.LastMessageID() + 1; id > n {
			n = id
		}
	}
	return n
}
