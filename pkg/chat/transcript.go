package chat

import (
	"sync"

	"github.com/pario-ai/costdesk/pkg/models"
)

// Transcript is the in-memory, append-only conversation log.
type Transcript struct {
	mu    sync.Mutex
	turns []models.ChatTurn
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds turns in order.
func (t *Transcript) Append(turns ...models.ChatTurn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turns...)
}

// Turns returns a copy of all turns so far.
func (t *Transcript) Turns() []models.ChatTurn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ChatTurn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}
