package rerank

import (
	"fmt"
	"strings"

	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/provider"
)

const systemPrompt = `You select memories for a roleplay assistant.
From the numbered list, pick the memories most relevant to continuing the current scene.
Prefer important memories (more stars) and memories about the characters and places in play.
Reply with JSON only, in the form {"selected": [1, 4, 7]}, using the list numbers.`

const userPrompt = `Select up to %d of the following %d memories.

%s
Reply with {"selected": [...]}.`

// BuildPrompt formats scored memories as a numbered list and asks for up to
// target 1-based indices. Importance is rendered as stars and secret events
// are flagged.
func BuildPrompt(scored []memory.Scored, target int) []provider.LLMMessage {
	var b strings.Builder
	for i, s := range scored {
		ev := s.Memory
		fmt.Fprintf(&b, "%d. [%s]", i+1, stars(ev.Importance))
		if ev.IsSecret {
			b.WriteString(" [SECRET]")
		}
		b.WriteByte(' ')
		b.WriteString(strings.Join(strings.Fields(ev.Summary), " "))
		b.WriteByte('\n')
	}

	return []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: systemPrompt},
		{Role: provider.MessageRoleUser, Content: fmt.Sprintf(userPrompt, target, len(scored), b.String())},
	}
}

func stars(importance int) string {
	importance = memory.ClampImportance(importance)
	return strings.Repeat("★", importance) + strings.Repeat("☆", memory.MaxImportance-importance)
}
