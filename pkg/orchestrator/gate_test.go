package orchestrator

import (
	"context"
	"errors"
	"testing"
)

func testSession() *Session {
	return &Session{ID: "S1", UserID: "u1", SceneID: "cafe", TopicID: "ordering", FirstLanguage: LanguageZh}
}

func TestCorrectionGateApproves(t *testing.T) {
	tutor := &MockTutor{verdict: &TutorVerdict{NeedsCorrection: false}}
	gate := NewCorrectionGate(tutor, DefaultConfig(), nil)

	result, err := gate.Evaluate(context.Background(), testSession(), Utterance{Text: "I would like a coffee"}, LanguageZh)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.NeedsCorrection || result.CorrectionMessage != "" {
		t.Errorf("Expected approval, got %+v", result)
	}

	req := tutor.requests[0]
	if req.SessionID != "S1" || req.SceneID != "cafe" || req.UserID != "u1" || req.FirstLanguage != LanguageZh {
		t.Errorf("Unexpected tutor request: %+v", req)
	}
}

func TestCorrectionGateCorrects(t *testing.T) {
	tutor := &MockTutor{verdict: &TutorVerdict{NeedsCorrection: true, CorrectionText: "Say 'went'"}}
	gate := NewCorrectionGate(tutor, DefaultConfig(), nil)

	result, err := gate.Evaluate(context.Background(), testSession(), Utterance{Text: "I goed"}, LanguageZh)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.NeedsCorrection || result.CorrectionMessage != "Say 'went'" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.PartnerMessage != "" {
		t.Errorf("Expected no partner message on correction")
	}
}

func TestCorrectionGateFallsBackToFeedback(t *testing.T) {
	tutor := &MockTutor{verdict: &TutorVerdict{NeedsCorrection: true, RawFeedback: "Use past tense."}}
	gate := NewCorrectionGate(tutor, DefaultConfig(), nil)

	result, err := gate.Evaluate(context.Background(), testSession(), Utterance{Text: "I goed"}, LanguageEn)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.CorrectionMessage != "Use past tense." {
		t.Errorf("Expected raw feedback to be used, got %q", result.CorrectionMessage)
	}
}

func TestCorrectionGateErrors(t *testing.T) {
	tests := []struct {
		name  string
		tutor *MockTutor
	}{
		{"transport error", &MockTutor{err: errors.New("503")}},
		{"nil verdict", &MockTutor{}},
		{"correction without message", &MockTutor{verdict: &TutorVerdict{NeedsCorrection: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewCorrectionGate(tt.tutor, DefaultConfig(), nil)
			_, err := gate.Evaluate(context.Background(), testSession(), Utterance{Text: "hi"}, LanguageEn)
			if !errors.Is(err, ErrTutorEvaluationFailed) {
				t.Errorf("Expected ErrTutorEvaluationFailed, got %v", err)
			}
		})
	}
}

func TestPartnerChannelRespond(t *testing.T) {
	partner := &MockPartner{reply: "  Sure, what size?  "}
	ch := NewPartnerChannel(partner, DefaultConfig(), nil)

	reply, err := ch.Respond(context.Background(), testSession(), Utterance{Text: "A coffee please"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if reply != "Sure, what size?" {
		t.Errorf("Expected trimmed reply, got %q", reply)
	}
	if partner.requests[0].Text != "A coffee please" {
		t.Errorf("Expected utterance to be forwarded")
	}
}

func TestPartnerChannelEmptyReply(t *testing.T) {
	ch := NewPartnerChannel(&MockPartner{reply: "   "}, DefaultConfig(), nil)
	if _, err := ch.Respond(context.Background(), testSession(), Utterance{Text: "hi"}); !errors.Is(err, ErrPartnerResponseFailed) {
		t.Errorf("Expected ErrPartnerResponseFailed, got %v", err)
	}
}

func TestPartnerChannelNilPartner(t *testing.T) {
	ch := NewPartnerChannel(nil, DefaultConfig(), nil)
	_, err := ch.Respond(context.Background(), testSession(), Utterance{Text: "hi"})
	if !errors.Is(err, ErrNilProvider) {
		t.Errorf("Expected ErrNilProvider, got %v", err)
	}
}

func TestCorrectionGateSendsSessionLevel(t *testing.T) {
	tutor := &MockTutor{verdict: &TutorVerdict{}}
	session := testSession()
	session.ProficiencyLevel = "A2"

	if _, err := NewCorrectionGate(tutor, DefaultConfig(), nil).Evaluate(context.Background(), session, Utterance{Text: "Hi"}, LanguageZh); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	tutor.mu.Lock()
	defer tutor.mu.Unlock()
	if tutor.requests[0].ProficiencyLevel != "A2" {
		t.Errorf("Expected level A2 on the tutor request, got %q", tutor.requests[0].ProficiencyLevel)
	}
}
