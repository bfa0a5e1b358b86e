package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// Conversation is one role-play screen: a session, its transcript, and the
// controllers for typed input, speech input and audio output. Events are
// delivered on Events until Close.
type Conversation struct {
	params     SessionParams
	config     Config
	logger     Logger
	sessions   *SessionManager
	transcript *Transcript
	turns      *TurnController
	speech     *SpeechInputController
	audio      *AudioOutputController
	guide      *sceneGuide
	forget     []SessionForgetter

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan Event
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	showFeedback atomic.Bool
}

func newConversation(ctx context.Context, p Providers, config Config, logger Logger, params SessionParams) *Conversation {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = 1024
	}
	cctx, cancel := context.WithCancel(ctx)

	c := &Conversation{
		params:     params,
		config:     config,
		logger:     logger,
		transcript: NewTranscript(),
		ctx:        cctx,
		cancel:     cancel,
		events:     make(chan Event, buffer),
	}
	c.showFeedback.Store(true)
	c.guide = &sceneGuide{source: p.Scenes, logger: logger}
	for _, v := range []interface{}{p.Sessions, p.Tutor, p.Partner} {
		if f, ok := v.(SessionForgetter); ok {
			c.forget = append(c.forget, f)
		}
	}
	c.sessions = NewSessionManager(p.Sessions, config, logger)
	c.audio = NewAudioOutputController(p.TTS, p.Player, config, logger)
	c.speech = NewSpeechInputController(p.Recognizer, p.Permissions, config, logger)
	c.turns = NewTurnController(
		c.sessions,
		NewCorrectionGate(p.Tutor, config, logger),
		NewPartnerChannel(p.Partner, config, logger),
		c.audio,
		c.transcript,
		config,
		logger,
	)

	c.audio.OnEvent(c.emit)
	c.speech.OnEvent(c.emit)
	c.turns.OnEvent(c.emit)
	c.sessions.OnReady(c.sessionReady)
	// the mic stays off for the whole turn, whichever input started it
	c.turns.OnTurnStart(func(Utterance) { c.speech.StopListening() })
	c.speech.OnUtterance(func(text string) {
		if _, err := c.submit(c.ctx, text, SourceSpoken); err != nil && !errors.Is(err, ErrConversationClosed) {
			c.logger.Warn("spoken utterance not completed", "error", err)
		}
	})

	if !c.audio.Enabled() {
		logger.Warn("voice output unavailable, continuing in text-only mode")
	}
	return c
}

// Open creates the session. On failure a SessionFailed event is delivered and
// the conversation is closed.
func (c *Conversation) Open(ctx context.Context) error {
	if c.isClosed() {
		return ErrConversationClosed
	}
	if _, err := c.sessions.Create(ctx, c.params); err != nil {
		if errors.Is(err, ErrSessionExists) {
			return err
		}
		c.emit(SessionFailed, err.Error())
		c.Close()
		return err
	}
	return nil
}

func (c *Conversation) sessionReady(s Session) {
	c.emit(SessionReady, s)
	if msg := strings.TrimSpace(c.config.WelcomeMessage); msg != "" {
		c.transcript.Append(false, msg)
		c.emit(TranscriptChanged, c.transcript.Entries())
	}
	c.turns.EnableInput()
}

// Submit runs a turn for typed text.
func (c *Conversation) Submit(ctx context.Context, text string) (*TurnResult, error) {
	return c.submit(ctx, text, SourceTyped)
}

func (c *Conversation) submit(ctx context.Context, text string, source UtteranceSource) (*TurnResult, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrConversationClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	tctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()
	return c.turns.Submit(tctx, text, source)
}

// StartListening starts a speech recognition whose final transcript is
// submitted as a turn.
func (c *Conversation) StartListening() (*Recognition, error) {
	if c.isClosed() {
		return nil, ErrConversationClosed
	}
	if !c.turns.InputEnabled() {
		return nil, ErrInputDisabled
	}
	rec, err := c.speech.StartListening(c.ctx)
	if err != nil {
		return nil, err
	}
	// a turn may have started between the check and the start
	if !c.turns.InputEnabled() {
		c.speech.StopListening()
		return nil, ErrInputDisabled
	}
	return rec, nil
}

// Listening reports whether a recognition is running.
func (c *Conversation) Listening() bool {
	return c.speech.Listening()
}

func (c *Conversation) StopListening() {
	c.speech.StopListening()
}

// KeyPhrases returns the scene's study material at the learner's level.
func (c *Conversation) KeyPhrases(ctx context.Context) (*SceneLevel, error) {
	if c.isClosed() {
		return nil, ErrConversationClosed
	}
	level := c.params.ProficiencyLevel
	if s := c.sessions.Current(); s != nil {
		level = s.ProficiencyLevel
	}
	if level == "" {
		level = c.config.ProficiencyLevel
	}
	return c.guide.load(ctx, c.params.SceneID, level)
}

// StopSpeaking cuts the current playback short.
func (c *Conversation) StopSpeaking() {
	c.audio.Stop()
}

// Acknowledge dismisses the last turn failure.
func (c *Conversation) Acknowledge() {
	c.turns.Acknowledge()
}

func (c *Conversation) Events() <-chan Event {
	return c.events
}

func (c *Conversation) Session() *Session {
	return c.sessions.Current()
}

func (c *Conversation) Transcript() []TranscriptEntry {
	return c.transcript.Entries()
}

func (c *Conversation) TurnState() TurnState {
	return c.turns.State()
}

func (c *Conversation) InputEnabled() bool {
	return c.turns.InputEnabled()
}

func (c *Conversation) VoiceInputAvailable() bool {
	return c.speech.Available()
}

func (c *Conversation) VoiceOutputAvailable() bool {
	return c.audio.Enabled()
}

// SetShowFeedback toggles whether corrections are rendered under user entries.
func (c *Conversation) SetShowFeedback(show bool) {
	c.showFeedback.Store(show)
}

func (c *Conversation) ShowFeedback() bool {
	return c.showFeedback.Load()
}

// Close stops listening and playback, waits for in-flight turns and closes
// the event channel. It is safe to call more than once.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.speech.StopListening()
		c.audio.Stop()

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.speech.Wait()
		c.wg.Wait()
		c.audio.Stop()
		if s := c.sessions.Current(); s != nil {
			for _, f := range c.forget {
				f.Forget(s.ID)
			}
		}
		close(c.events)
		c.logger.Debug("conversation closed")
	})
}

func (c *Conversation) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Conversation) emit(eventType EventType, data interface{}) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	var sessionID string
	if s := c.sessions.Current(); s != nil {
		sessionID = s.ID
	}
	select {
	case c.events <- Event{Type: eventType, SessionID: sessionID, Data: data}:
	case <-c.ctx.Done():
	}
}
