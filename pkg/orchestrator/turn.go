package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type TurnState string

const (
	StateAwaitingInput        TurnState = "AWAITING_INPUT"
	StateEvaluating           TurnState = "EVALUATING"
	StateSpeakingCorrection   TurnState = "SPEAKING_CORRECTION"
	StateQueryingPartner      TurnState = "QUERYING_PARTNER"
	StateSpeakingPartnerReply TurnState = "SPEAKING_PARTNER_REPLY"
	StateFailed               TurnState = "FAILED"
)

// TurnController runs one learner turn at a time: tutor first, then either
// the correction or the partner. Utterances that arrive mid-turn are dropped.
type TurnController struct {
	sessions   *SessionManager
	gate       *CorrectionGate
	partner    *PartnerChannel
	speaker    Speaker
	transcript *Transcript
	config     Config
	logger     Logger
	emit       func(EventType, interface{})
	onStart    func(Utterance)

	mu           sync.Mutex
	state        TurnState
	inputEnabled bool
	seq          int
	lastFailure  *TurnFailure
}

func NewTurnController(sessions *SessionManager, gate *CorrectionGate, partner *PartnerChannel, speaker Speaker, transcript *Transcript, config Config, logger Logger) *TurnController {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if transcript == nil {
		transcript = NewTranscript()
	}
	return &TurnController{
		sessions:   sessions,
		gate:       gate,
		partner:    partner,
		speaker:    speaker,
		transcript: transcript,
		config:     config,
		logger:     logger,
		emit:       func(EventType, interface{}) {},
		state:      StateAwaitingInput,
	}
}

func (tc *TurnController) OnEvent(fn func(EventType, interface{})) {
	if fn == nil {
		fn = func(EventType, interface{}) {}
	}
	tc.emit = fn
}

// OnTurnStart registers a hook that runs once a turn has taken the
// controller, before the tutor is called.
func (tc *TurnController) OnTurnStart(fn func(Utterance)) {
	tc.onStart = fn
}

// EnableInput opens the controller for the first turn once the session is ready.
func (tc *TurnController) EnableInput() {
	tc.mu.Lock()
	if tc.inputEnabled {
		tc.mu.Unlock()
		return
	}
	tc.inputEnabled = true
	tc.mu.Unlock()
	tc.emit(InputChanged, true)
}

func (tc *TurnController) InputEnabled() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.inputEnabled
}

func (tc *TurnController) State() TurnState {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.state
}

func (tc *TurnController) LastFailure() *TurnFailure {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.lastFailure == nil {
		return nil
	}
	f := *tc.lastFailure
	return &f
}

// Acknowledge clears a failed turn.
func (tc *TurnController) Acknowledge() {
	tc.mu.Lock()
	if tc.state != StateFailed {
		tc.mu.Unlock()
		return
	}
	tc.state = StateAwaitingInput
	tc.lastFailure = nil
	tc.mu.Unlock()
	tc.emit(TurnStateChanged, StateAwaitingInput)
}

// Submit runs one turn for text and blocks until it completes.
func (tc *TurnController) Submit(ctx context.Context, text string, source UtteranceSource) (result *TurnResult, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	session := tc.sessions.Current()
	if session == nil {
		return nil, ErrNoSession
	}

	tc.mu.Lock()
	if tc.state != StateAwaitingInput && tc.state != StateFailed {
		state := tc.state
		tc.mu.Unlock()
		tc.logger.Debug("utterance dropped, turn in flight", "sessionID", session.ID, "state", state, "source", source)
		return nil, ErrTurnInFlight
	}
	if !tc.inputEnabled {
		tc.mu.Unlock()
		return nil, ErrInputDisabled
	}
	tc.seq++
	utterance := Utterance{Text: text, Source: source, Sequence: tc.seq}
	tc.state = StateEvaluating
	tc.inputEnabled = false
	tc.lastFailure = nil
	tc.mu.Unlock()

	tc.emit(InputChanged, false)
	tc.emit(TurnStateChanged, StateEvaluating)
	if tc.onStart != nil {
		tc.onStart(utterance)
	}

	defer func() {
		tc.finish(session, err)
	}()
	return tc.run(ctx, session, utterance)
}

func (tc *TurnController) run(ctx context.Context, session *Session, utterance Utterance) (*TurnResult, error) {
	tc.logger.Info("turn started", "sessionID", session.ID, "seq", utterance.Sequence, "source", utterance.Source)
	entry := tc.transcript.Append(true, utterance.Text)
	tc.emit(TranscriptChanged, tc.transcript.Entries())

	result, err := tc.gate.Evaluate(ctx, session, utterance, session.FirstLanguage)
	if err != nil {
		return nil, err
	}

	if result.NeedsCorrection {
		tc.setState(StateSpeakingCorrection)
		annotated, err := tc.transcript.AnnotateLatestUser(result.CorrectionMessage)
		if err != nil {
			return nil, err
		}
		if annotated.ID != entry.ID {
			tc.logger.Warn("correction attached to a later entry", "expected", entry.ID, "got", annotated.ID)
		}
		tc.emit(TranscriptChanged, tc.transcript.Entries())
		tc.emit(CorrectionSpoken, result.CorrectionMessage)
		tc.speak(ctx, session, PlaybackRequest{
			Text:  result.CorrectionMessage,
			Voice: tc.config.Voices.Correction(session.FirstLanguage),
		})
		return result, nil
	}

	tc.setState(StateQueryingPartner)
	reply, err := tc.partner.Respond(ctx, session, utterance)
	if err != nil {
		return nil, err
	}
	result.PartnerMessage = reply
	tc.transcript.Append(false, reply)
	tc.emit(TranscriptChanged, tc.transcript.Entries())

	tc.setState(StateSpeakingPartnerReply)
	tc.emit(PartnerReplied, reply)
	tc.speak(ctx, session, PlaybackRequest{
		Text:  reply,
		Voice: tc.config.Voices.Partner(tc.config.Language),
	})
	return result, nil
}

// speak never fails the turn; the text is already in the transcript.
func (tc *TurnController) speak(ctx context.Context, session *Session, req PlaybackRequest) {
	if tc.speaker == nil {
		return
	}
	err := tc.speaker.Speak(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, ErrOutputDisabled):
	case errors.Is(err, ErrNoAudio):
		tc.logger.Debug("nothing to play", "sessionID", session.ID)
	case errors.Is(err, context.Canceled):
		tc.logger.Debug("playback cancelled", "sessionID", session.ID)
	default:
		tc.logger.Warn("playback failed", "sessionID", session.ID, "error", err)
		tc.emit(PlaybackFailed, err)
	}
}

func (tc *TurnController) finish(session *Session, err error) {
	tc.mu.Lock()
	if err != nil {
		tc.state = StateFailed
		tc.lastFailure = &TurnFailure{Reason: failureReason(err), Err: err}
	} else {
		tc.state = StateAwaitingInput
	}
	tc.inputEnabled = true
	state := tc.state
	failure := tc.lastFailure
	tc.mu.Unlock()

	if failure != nil {
		tc.logger.Error("turn failed", "sessionID", session.ID, "reason", failure.Reason, "error", err)
		tc.emit(TurnFailed, *failure)
	} else {
		tc.logger.Debug("turn completed", "sessionID", session.ID)
	}
	tc.emit(TurnStateChanged, state)
	tc.emit(InputChanged, true)
}

func (tc *TurnController) setState(s TurnState) {
	tc.mu.Lock()
	tc.state = s
	tc.mu.Unlock()
	tc.emit(TurnStateChanged, s)
}
