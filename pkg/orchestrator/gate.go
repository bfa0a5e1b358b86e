package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type TutorRequest struct {
	SessionID        string
	SceneID          string
	UserID           string
	Text             string
	FirstLanguage    Language
	ProficiencyLevel string
}

// TutorVerdict is the tutor's judgement of one utterance.
type TutorVerdict struct {
	NeedsCorrection bool
	CorrectionText  string
	RawFeedback     string
}

type Tutor interface {
	ChatWithTutor(ctx context.Context, req TutorRequest) (*TutorVerdict, error)
}

type PartnerRequest struct {
	SessionID string
	SceneID   string
	UserID    string
	Text      string
}

type Partner interface {
	ChatWithPartner(ctx context.Context, req PartnerRequest) (string, error)
}

// SessionForgetter is implemented by collaborators that keep per-session
// state. Forget is called when the conversation closes.
type SessionForgetter interface {
	Forget(sessionID string)
}

// CorrectionGate decides whether an utterance may reach the partner. It never
// calls the partner itself.
type CorrectionGate struct {
	tutor   Tutor
	timeout uint
	logger  Logger
}

func NewCorrectionGate(tutor Tutor, config Config, logger Logger) *CorrectionGate {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &CorrectionGate{tutor: tutor, timeout: config.TutorTimeout, logger: logger}
}

func (g *CorrectionGate) Evaluate(ctx context.Context, session *Session, utterance Utterance, firstLanguage Language) (*TurnResult, error) {
	if g.tutor == nil {
		return nil, fmt.Errorf("%w: %w", ErrTutorEvaluationFailed, ErrNilProvider)
	}
	if session == nil {
		return nil, ErrNoSession
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, seconds(g.timeout))
		defer cancel()
	}

	verdict, err := g.tutor.ChatWithTutor(ctx, TutorRequest{
		SessionID:        session.ID,
		SceneID:          session.SceneID,
		UserID:           session.UserID,
		Text:             utterance.Text,
		FirstLanguage:    firstLanguage,
		ProficiencyLevel: session.ProficiencyLevel,
	})
	if err != nil {
		g.logger.Error("tutor evaluation failed", "sessionID", session.ID, "seq", utterance.Sequence, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTutorEvaluationFailed, err)
	}
	if verdict == nil {
		return nil, fmt.Errorf("%w: empty verdict", ErrTutorEvaluationFailed)
	}

	if !verdict.NeedsCorrection {
		g.logger.Debug("utterance approved", "sessionID", session.ID, "seq", utterance.Sequence)
		return &TurnResult{}, nil
	}

	message := strings.TrimSpace(verdict.CorrectionText)
	if message == "" {
		message = strings.TrimSpace(verdict.RawFeedback)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: correction requested without a message", ErrTutorEvaluationFailed)
	}
	g.logger.Info("utterance needs correction", "sessionID", session.ID, "seq", utterance.Sequence)
	return &TurnResult{NeedsCorrection: true, CorrectionMessage: message}, nil
}

// PartnerChannel forwards approved utterances to the scene partner.
type PartnerChannel struct {
	partner Partner
	timeout uint
	logger  Logger
}

var errEmptyReply = errors.New("partner returned an empty reply")

func NewPartnerChannel(partner Partner, config Config, logger Logger) *PartnerChannel {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &PartnerChannel{partner: partner, timeout: config.PartnerTimeout, logger: logger}
}

func (p *PartnerChannel) Respond(ctx context.Context, session *Session, utterance Utterance) (string, error) {
	if p.partner == nil {
		return "", fmt.Errorf("%w: %w", ErrPartnerResponseFailed, ErrNilProvider)
	}
	if session == nil {
		return "", ErrNoSession
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, seconds(p.timeout))
		defer cancel()
	}

	reply, err := p.partner.ChatWithPartner(ctx, PartnerRequest{
		SessionID: session.ID,
		SceneID:   session.SceneID,
		UserID:    session.UserID,
		Text:      utterance.Text,
	})
	if err != nil {
		p.logger.Error("partner request failed", "sessionID", session.ID, "seq", utterance.Sequence, "error", err)
		return "", fmt.Errorf("%w: %w", ErrPartnerResponseFailed, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: %w", ErrPartnerResponseFailed, errEmptyReply)
	}
	return reply, nil
}
