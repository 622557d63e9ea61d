package memory

import "strings"

// FormatMemories renders events as a prompt section ready for injection
// into a generation request. Returns an empty string for no events.
func FormatMemories(events []*Event) string {
	if len(events) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant Memory\n\n")
	for _, ev := range events {
		b.WriteString("- ")
		if ev.IsSecret {
			b.WriteString("[secret] ")
		}
		b.WriteString(ev.Summary)
		b.WriteString("\n")
	}
	return b.String()
}
