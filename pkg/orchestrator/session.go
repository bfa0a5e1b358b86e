package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type SessionRequest struct {
	UserID  string
	SceneID string
	TopicID string
}

type SessionInfo struct {
	ID        string
	StartedAt time.Time
}

// SessionTransport creates the server-side session. Retry policy lives here,
// not in SessionManager.
type SessionTransport interface {
	CreateSession(ctx context.Context, req SessionRequest) (*SessionInfo, error)
}

type SessionParams struct {
	UserID           string
	SceneID          string
	TopicID          string
	FirstLanguage    Language
	ProficiencyLevel string
}

// SessionManager owns the identity of one conversation. It publishes the
// session once creation succeeds; everything else reads copies.
type SessionManager struct {
	transport SessionTransport
	config    Config
	logger    Logger

	mu      sync.RWMutex
	session *Session
	onReady func(Session)
}

func NewSessionManager(transport SessionTransport, config Config, logger Logger) *SessionManager {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &SessionManager{transport: transport, config: config, logger: logger}
}

// OnReady registers a hook fired once the session is published.
func (m *SessionManager) OnReady(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = fn
}

// Create asks the transport for a session. Any failure is terminal for the
// conversation that owns this manager.
func (m *SessionManager) Create(ctx context.Context, params SessionParams) (*Session, error) {
	if m.transport == nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, ErrNilProvider)
	}
	if strings.TrimSpace(params.SceneID) == "" || strings.TrimSpace(params.TopicID) == "" {
		return nil, fmt.Errorf("%w: scene and topic ids are required", ErrSessionCreationFailed)
	}

	m.mu.RLock()
	exists := m.session != nil
	m.mu.RUnlock()
	if exists {
		return nil, ErrSessionExists
	}

	info, err := m.transport.CreateSession(ctx, SessionRequest{
		UserID:  params.UserID,
		SceneID: params.SceneID,
		TopicID: params.TopicID,
	})
	if err != nil {
		m.logger.Error("session creation failed", "sceneID", params.SceneID, "topicID", params.TopicID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}
	if info == nil || strings.TrimSpace(info.ID) == "" {
		m.logger.Error("session creation returned no id", "sceneID", params.SceneID)
		return nil, fmt.Errorf("%w: server returned no session id", ErrSessionCreationFailed)
	}

	session := Session{
		ID:               info.ID,
		UserID:           params.UserID,
		SceneID:          params.SceneID,
		TopicID:          params.TopicID,
		FirstLanguage:    params.FirstLanguage,
		ProficiencyLevel: params.ProficiencyLevel,
		StartedAt:        info.StartedAt,
	}
	if session.FirstLanguage == "" {
		session.FirstLanguage = m.config.DefaultFirstLanguage
	}
	if session.FirstLanguage == "" {
		session.FirstLanguage = LanguageEn
	}
	if session.ProficiencyLevel == "" {
		session.ProficiencyLevel = m.config.ProficiencyLevel
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.session = &session
	onReady := m.onReady
	m.mu.Unlock()

	m.logger.Info("session created", "sessionID", session.ID, "sceneID", session.SceneID, "firstLanguage", session.FirstLanguage)
	if onReady != nil {
		onReady(session)
	}

	out := session
	return &out, nil
}

// Current returns a copy of the published session, or nil before creation.
func (m *SessionManager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	out := *m.session
	return &out
}

func (m *SessionManager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}
