package worker

import (
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/scoring"
)

// Request is one message to the scoring goroutine. Memories is nil when the
// goroutine's cached copy is still current.
type Request struct {
	Memories       []*memory.Event
	Changed        bool
	QueryEmbedding []float32
	ChatLength     int
	Limit          int
	Constants      scoring.Constants
	Settings       scoring.Settings
	QueryTokens    []string

	reply chan Response
}

// Response is the goroutine's single reply to a Request.
type Response struct {
	Success bool
	Results []memory.Scored
	Error   string
}
