package roleplay

import (
	"context"
	"strings"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

const defaultHistory = 20

// Partner plays the scene with a language model. Only approved utterances
// reach it, so its history holds clean learner sentences.
type Partner struct {
	llm     orchestrator.LLMProvider
	scenes  Scenes
	config  orchestrator.Config
	history *history
	logger  orchestrator.Logger
}

func NewPartner(llm orchestrator.LLMProvider, scenes Scenes, config orchestrator.Config, logger orchestrator.Logger) *Partner {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	if scenes == nil {
		scenes = DefaultScenes()
	}
	return &Partner{llm: llm, scenes: scenes, config: config, history: newHistory(defaultHistory), logger: logger}
}

func (p *Partner) Name() string {
	return "roleplay_partner(" + p.llm.Name() + ")"
}

func (p *Partner) SetHistoryLimit(n int) {
	if n > 0 {
		p.history = newHistory(n)
	}
}

func (p *Partner) ChatWithPartner(ctx context.Context, req orchestrator.PartnerRequest) (string, error) {
	user := orchestrator.Message{Role: "user", Content: req.Text}
	messages := []orchestrator.Message{{Role: "system", Content: partnerPrompt(p.scenes.Lookup(req.SceneID), p.config.Language)}}
	messages = append(messages, p.history.get(req.SessionID)...)
	messages = append(messages, user)

	reply, err := p.llm.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	p.history.append(req.SessionID, user, orchestrator.Message{Role: "assistant", Content: reply})
	p.logger.Debug("partner replied", "sessionID", req.SessionID, "turns", len(messages)/2)
	return reply, nil
}

// Forget drops the history of a finished session.
func (p *Partner) Forget(sessionID string) {
	p.history.forget(sessionID)
}
