package roleplay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// Tutor evaluates utterances with a language model instead of the
// conversation backend.
type Tutor struct {
	llm    orchestrator.LLMProvider
	scenes Scenes
	config orchestrator.Config
	logger orchestrator.Logger
}

func NewTutor(llm orchestrator.LLMProvider, scenes Scenes, config orchestrator.Config, logger orchestrator.Logger) *Tutor {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	if scenes == nil {
		scenes = DefaultScenes()
	}
	return &Tutor{llm: llm, scenes: scenes, config: config, logger: logger}
}

func (t *Tutor) Name() string {
	return "roleplay_tutor(" + t.llm.Name() + ")"
}

type verdictJSON struct {
	NeedsCorrection bool            `json:"needs_correction"`
	TutorMessage    string          `json:"tutor_message"`
	Feedback        json.RawMessage `json:"feedback"`
}

func (t *Tutor) ChatWithTutor(ctx context.Context, req orchestrator.TutorRequest) (*orchestrator.TutorVerdict, error) {
	first := req.FirstLanguage
	if first == "" {
		first = t.config.DefaultFirstLanguage
	}
	level := req.ProficiencyLevel
	if level == "" {
		level = t.config.ProficiencyLevel
	}
	prompt := tutorPrompt(t.scenes.Lookup(req.SceneID), t.config.Language, first, level)

	reply, err := t.llm.Complete(ctx, []orchestrator.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: req.Text},
	})
	if err != nil {
		return nil, err
	}

	var v verdictJSON
	if err := decodeReply(reply, &v); err != nil {
		t.logger.Warn("tutor reply unparseable", "sessionID", req.SessionID, "reply", reply)
		return nil, err
	}
	if v.NeedsCorrection && strings.TrimSpace(v.TutorMessage) == "" {
		return nil, fmt.Errorf("%w: correction without message", ErrMalformedReply)
	}

	return &orchestrator.TutorVerdict{
		NeedsCorrection: v.NeedsCorrection,
		CorrectionText:  strings.TrimSpace(v.TutorMessage),
		RawFeedback:     feedbackString(v.Feedback),
	}, nil
}

// feedbackString accepts feedback both as an object and as a JSON-encoded
// string, which older prompts asked for.
func feedbackString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
