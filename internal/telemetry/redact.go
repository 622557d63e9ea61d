package telemetry

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Redacted replaces secrets in log output.
const Redacted = "***REDACTED***"

// defaultPatterns cover the key formats of the providers openvault talks to.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-(?:ant-|or-v1-|proj-)?[A-Za-z0-9_\-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{16,}`),
}

// Redactor scrubs known key formats and configured literal secrets, such
// as provider API keys, from strings. It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	literals []string
}

// NewRedactor returns a Redactor that also hides the given literals.
// Literals shorter than four bytes are ignored.
func NewRedactor(literals ...string) *Redactor {
	r := &Redactor{}
	for _, l := range literals {
		r.Add(l)
	}
	return r
}

// Add registers another literal secret.
func (r *Redactor) Add(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every secret replaced by Redacted.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	for _, p := range defaultPatterns {
		s = p.ReplaceAllString(s, Redacted)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lit := range r.literals {
		s = strings.ReplaceAll(s, lit, Redacted)
	}
	return s
}

// RedactingHandler redacts the message and every string-like attribute
// before handing the record to the wrapped handler.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(clean), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(clean...)
	case slog.KindAny:
		// Errors and Stringers stay typed unless they carry a secret.
		s := a.Value.String()
		if red := h.redactor.Redact(s); red != s {
			a.Value = slog.StringValue(red)
		}
	}
	return a
}
