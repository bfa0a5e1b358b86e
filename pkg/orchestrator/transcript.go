package orchestrator

import "sync"

// Transcript is the ordered, append-only list of entries shown to the learner.
type Transcript struct {
	mu      sync.RWMutex
	entries []TranscriptEntry
	nextID  int
}

func NewTranscript() *Transcript {
	return &Transcript{nextID: 1}
}

func (t *Transcript) Append(isUser bool, content string) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := TranscriptEntry{ID: t.nextID, IsUser: isUser, Content: content}
	t.nextID++
	t.entries = append(t.entries, entry)
	return entry
}

// AnnotateLatestUser attaches feedback to the most recent user entry by position.
func (t *Transcript) AnnotateLatestUser(feedback string) (TranscriptEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].IsUser {
			t.entries[i].Feedback = feedback
			return t.entries[i], nil
		}
	}
	return TranscriptEntry{}, ErrNoUserEntry
}

func (t *Transcript) LatestUser() (TranscriptEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].IsUser {
			return t.entries[i], true
		}
	}
	return TranscriptEntry{}, false
}

func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entriesCopy := make([]TranscriptEntry, len(t.entries))
	copy(entriesCopy, t.entries)
	return entriesCopy
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
