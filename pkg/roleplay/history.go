package roleplay

import (
	"sync"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// history keeps the last max messages per session.
type history struct {
	max int

	mu       sync.Mutex
	sessions map[string][]orchestrator.Message
}

func newHistory(max int) *history {
	return &history{max: max, sessions: make(map[string][]orchestrator.Message)}
}

func (h *history) append(sessionID string, msgs ...orchestrator.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.sessions[sessionID], msgs...)
	if len(all) > h.max {
		all = append([]orchestrator.Message(nil), all[len(all)-h.max:]...)
	}
	h.sessions[sessionID] = all
}

func (h *history) get(sessionID string) []orchestrator.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]orchestrator.Message(nil), h.sessions[sessionID]...)
}

func (h *history) forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}
