package roleplay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

type MockLLM struct {
	replies []string
	err     error

	mu    sync.Mutex
	calls [][]orchestrator.Message
}

func (m *MockLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *MockLLM) Name() string {
	return "MockLLM"
}

func (m *MockLLM) Call(i int) []orchestrator.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "Sure!\n```json\n{\"a\":1}\n```\nBye", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`},
		{"no object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.reply); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepairJSON(t *testing.T) {
	in := `{"grammar_errors":{"I goed":"I went" or "I have gone"}}`
	want := `{"grammar_errors":{"I goed":"I went"}}`
	if got := repairJSON(in); got != want {
		t.Errorf("repairJSON() = %q, want %q", got, want)
	}
	untouched := `{"tutor_message":"say "a" or "b""}`
	if got := repairJSON(untouched); got != untouched {
		t.Errorf("Expected replies without grammar_errors to be left alone")
	}
}

func TestTutorCorrection(t *testing.T) {
	llm := &MockLLM{replies: []string{"```json\n" + `{
  "needs_correction": true,
  "tutor_message": "Deberías decir 'I went'.",
  "feedback": {"grammar_errors": {"I goed": "I went" or "I did go"}}
}` + "\n```"}}
	cfg := orchestrator.DefaultConfig()
	tutor := NewTutor(llm, nil, cfg, nil)

	verdict, err := tutor.ChatWithTutor(context.Background(), orchestrator.TutorRequest{
		SessionID: "S1", SceneID: "cafe", Text: "I goed", FirstLanguage: orchestrator.LanguageEs,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !verdict.NeedsCorrection || verdict.CorrectionText != "Deberías decir 'I went'." {
		t.Errorf("Unexpected verdict %+v", verdict)
	}
	if !strings.Contains(verdict.RawFeedback, `"I went"`) || strings.Contains(verdict.RawFeedback, " or ") {
		t.Errorf("Expected repaired feedback, got %s", verdict.RawFeedback)
	}

	msgs := llm.Call(0)
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "Spanish") || !strings.Contains(msgs[0].Content, "Ordering at a cafe") {
		t.Errorf("Expected system prompt with first language and scene, got %q", msgs[0].Content)
	}
	if msgs[1].Content != "I goed" {
		t.Errorf("Expected the utterance as user message")
	}
}

func TestTutorApproval(t *testing.T) {
	llm := &MockLLM{replies: []string{`{"needs_correction": false, "tutor_message": "", "feedback": "{\"unfamiliar_words\": []}"}`}}
	verdict, err := NewTutor(llm, nil, orchestrator.DefaultConfig(), nil).ChatWithTutor(context.Background(), orchestrator.TutorRequest{Text: "Hello"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if verdict.NeedsCorrection {
		t.Errorf("Expected approval")
	}
	if verdict.RawFeedback != `{"unfamiliar_words": []}` {
		t.Errorf("Expected string feedback to be unwrapped, got %q", verdict.RawFeedback)
	}
}

func TestTutorDefaultsFirstLanguage(t *testing.T) {
	llm := &MockLLM{replies: []string{`{"needs_correction": false}`}}
	cfg := orchestrator.DefaultConfig()
	cfg.DefaultFirstLanguage = orchestrator.LanguageJa
	if _, err := NewTutor(llm, nil, cfg, nil).ChatWithTutor(context.Background(), orchestrator.TutorRequest{Text: "Hi"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(llm.Call(0)[0].Content, "Japanese") {
		t.Errorf("Expected default first language in the prompt")
	}
}

func TestTutorErrors(t *testing.T) {
	tests := []struct {
		name string
		llm  *MockLLM
		want error
	}{
		{"malformed", &MockLLM{replies: []string{"I think it's fine"}}, ErrMalformedReply},
		{"correction without text", &MockLLM{replies: []string{`{"needs_correction": true, "tutor_message": " "}`}}, ErrMalformedReply},
		{"llm failure", &MockLLM{err: orchestrator.ErrNilProvider}, orchestrator.ErrNilProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTutor(tt.llm, nil, orchestrator.DefaultConfig(), nil).ChatWithTutor(context.Background(), orchestrator.TutorRequest{Text: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPartnerKeepsHistory(t *testing.T) {
	llm := &MockLLM{replies: []string{" What size? ", "Here you are."}}
	partner := NewPartner(llm, nil, orchestrator.DefaultConfig(), nil)

	reply, err := partner.ChatWithPartner(context.Background(), orchestrator.PartnerRequest{SessionID: "S1", SceneID: "cafe", Text: "A latte please"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if reply != "What size?" {
		t.Errorf("Expected trimmed reply, got %q", reply)
	}
	if _, err := partner.ChatWithPartner(context.Background(), orchestrator.PartnerRequest{SessionID: "S1", SceneID: "cafe", Text: "Large"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	second := llm.Call(1)
	if len(second) != 4 {
		t.Fatalf("Expected system, two history messages and the new one, got %d", len(second))
	}
	if second[1].Content != "A latte please" || second[2].Content != "What size?" || second[3].Content != "Large" {
		t.Errorf("Unexpected history %+v", second)
	}
	if !strings.Contains(second[0].Content, "barista") {
		t.Errorf("Expected scene setting in the system prompt")
	}
}

func TestPartnerHistoryIsBounded(t *testing.T) {
	llm := &MockLLM{replies: []string{"ok"}}
	partner := NewPartner(llm, nil, orchestrator.DefaultConfig(), nil)
	partner.SetHistoryLimit(2)

	for i := 0; i < 3; i++ {
		partner.ChatWithPartner(context.Background(), orchestrator.PartnerRequest{SessionID: "S1", Text: "hi"})
	}
	if got := len(llm.Call(2)); got != 4 {
		t.Errorf("Expected history capped at 2 messages, got %d total", got)
	}

	partner.Forget("S1")
	partner.ChatWithPartner(context.Background(), orchestrator.PartnerRequest{SessionID: "S1", Text: "hi"})
	if got := len(llm.Call(3)); got != 2 {
		t.Errorf("Expected empty history after Forget, got %d messages", got)
	}
}

func TestPartnerFailureKeepsHistoryClean(t *testing.T) {
	llm := &MockLLM{err: errors.New("boom")}
	partner := NewPartner(llm, nil, orchestrator.DefaultConfig(), nil)
	if _, err := partner.ChatWithPartner(context.Background(), orchestrator.PartnerRequest{SessionID: "S1", Text: "hi"}); err == nil {
		t.Fatal("Expected error")
	}
	if len(partner.history.get("S1")) != 0 {
		t.Errorf("Expected no history after a failed call")
	}
}

func TestScenesLookup(t *testing.T) {
	scenes := DefaultScenes()
	if scenes.Lookup(" Hotel ").Title != "Checking in at a hotel" {
		t.Errorf("Expected case-insensitive lookup")
	}
	if scenes.Lookup("42").Title != "Small talk" {
		t.Errorf("Expected generic scene for unknown id")
	}
}

func TestLocalSessions(t *testing.T) {
	s := NewLocalSessions()
	a, err := s.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "u"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	b, _ := s.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "u"})
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique ids, got %q and %q", a.ID, b.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.CreateSession(ctx, orchestrator.SessionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

var (
	_ orchestrator.SessionForgetter = (*Partner)(nil)
	_ orchestrator.SceneLevels      = Scenes(nil)
)

func TestTutorUsesSessionLevel(t *testing.T) {
	llm := &MockLLM{replies: []string{`{"needs_correction": false}`}}
	cfg := orchestrator.DefaultConfig()
	cfg.ProficiencyLevel = "B1"
	tutor := NewTutor(llm, nil, cfg, nil)

	if _, err := tutor.ChatWithTutor(context.Background(), orchestrator.TutorRequest{Text: "Hi", ProficiencyLevel: "A2"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := tutor.ChatWithTutor(context.Background(), orchestrator.TutorRequest{Text: "Hi"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(llm.Call(0)[0].Content, "level is A2") {
		t.Errorf("Expected the session level in the prompt, got %q", llm.Call(0)[0].Content)
	}
	if !strings.Contains(llm.Call(1)[0].Content, "level is B1") {
		t.Errorf("Expected the configured level as fallback")
	}
}

func TestScenesSceneLevel(t *testing.T) {
	sl, err := DefaultScenes().SceneLevel(context.Background(), "cafe", "A2")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if sl.SceneID != "cafe" || sl.Level != "A2" {
		t.Errorf("Unexpected identity %+v", sl)
	}
	if !strings.Contains(sl.KeyPhrases, "For here or to go?") || !strings.Contains(sl.Vocabulary, "latte") {
		t.Errorf("Expected cafe material, got %+v", sl)
	}

	generic, err := DefaultScenes().SceneLevel(context.Background(), "unknown", "B1")
	if err != nil || generic.KeyPhrases != "" {
		t.Errorf("Expected empty material for unknown scene, got %+v (%v)", generic, err)
	}
}
