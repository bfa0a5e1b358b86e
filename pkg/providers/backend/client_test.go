package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversation/session" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("Expected a request id")
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["user_id"] != float64(7) || body["scene_id"] != float64(3) || body["topic_id"] != "ordering" {
			t.Errorf("Unexpected body %v", body)
		}
		w.Write([]byte(`{"id":"abc-123","user_id":7,"scene_id":3,"started_at":"2024-05-01T10:00:00.123456"}`))
	}))
	defer server.Close()

	c := New(server.URL, WithTokenSource(StaticToken("tok")))
	info, err := c.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "7", SceneID: "3", TopicID: "ordering"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if info.ID != "abc-123" {
		t.Errorf("Expected abc-123, got %s", info.ID)
	}
	if info.StartedAt.Year() != 2024 {
		t.Errorf("Expected parsed start time, got %v", info.StartedAt)
	}
}

func TestCreateSessionNumericID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":42}`))
	}))
	defer server.Close()

	info, err := New(server.URL).CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "1"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if info.ID != "42" {
		t.Errorf("Expected 42, got %s", info.ID)
	}
}

func TestCreateSessionDoesNotRetryHTTPErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "scene not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL, WithSessionRetries(3, time.Millisecond))
	_, err := c.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 APIError, got %v", err)
	}
	if apiErr.RequestID == "" {
		t.Errorf("Expected request id on error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one call, got %d", calls.Load())
	}
}

func TestCreateSessionRetriesDialErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"id":"S1"}`))
	}))
	defer server.Close()

	var dials atomic.Int32
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if dials.Add(1) == 1 {
				return nil, &net.OpError{Op: "dial", Net: network, Err: errors.New("connection refused")}
			}
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	c := New(server.URL, WithHTTPClient(&http.Client{Transport: transport}), WithSessionRetries(2, time.Millisecond))
	info, err := c.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "1"})
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if info.ID != "S1" || calls.Load() != 1 || dials.Load() != 2 {
		t.Errorf("Expected S1 after 2 dials and 1 request, got %s after %d dials, %d requests", info.ID, dials.Load(), calls.Load())
	}
}

func TestCreateSessionDoesNotRetryAfterRequestSent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("hijack unsupported")
			return
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer server.Close()

	c := New(server.URL, WithSessionRetries(2, time.Millisecond))
	if _, err := c.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "1"}); err == nil {
		t.Fatal("Expected error for dropped connection")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single POST, got %d", calls.Load())
	}
}

func TestCreateSessionMalformedSuccessIsFinal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`<html>proxy page</html>`))
	}))
	defer server.Close()

	c := New(server.URL, WithSessionRetries(2, time.Millisecond))
	if _, err := c.CreateSession(context.Background(), orchestrator.SessionRequest{UserID: "1"}); err == nil {
		t.Fatal("Expected decode error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single POST, got %d", calls.Load())
	}
}

func TestSceneLevel(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"snake case", `{"scene_id":3,"english_level":"B1","key_phrases":"What can I get you?","vocabulary":"latte","grammar_points":"would like","example_dialogs":"A: Hi"}`},
		{"camel case", `{"sceneId":3,"englishLevel":"B1","keyPhrases":"What can I get you?","vocabulary":"latte","grammarPoints":"would like","exampleDialogs":"A: Hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/scenes/3/levels/B1" {
					t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			sl, err := New(server.URL).SceneLevel(context.Background(), "3", "B1")
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if sl.SceneID != "3" || sl.Level != "B1" || sl.KeyPhrases != "What can I get you?" || sl.Vocabulary != "latte" ||
				sl.GrammarPoints != "would like" || sl.ExampleDialogs != "A: Hi" {
				t.Errorf("Unexpected scene level %+v", sl)
			}
		})
	}
}

func TestSceneLevelNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := New(server.URL).SceneLevel(context.Background(), "3", "C2")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 APIError, got %v", err)
	}
}

func TestCreateSessionMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := New(server.URL).CreateSession(context.Background(), orchestrator.SessionRequest{}); err == nil {
		t.Errorf("Expected error for missing id")
	}
}

func TestChatWithTutor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversation/tutor" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["session_id"] != "S1" || body["user_input"] != "I goed" || body["first_language"] != "es" {
			t.Errorf("Unexpected body %v", body)
		}
		w.Write([]byte(`{"needs_correction":true,"tutor_message":"Di 'I went'","feedback":"{\"grammar_errors\":[]}"}`))
	}))
	defer server.Close()

	verdict, err := New(server.URL).ChatWithTutor(context.Background(), orchestrator.TutorRequest{
		SessionID: "S1", SceneID: "3", UserID: "7", Text: "I goed", FirstLanguage: orchestrator.LanguageEs,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !verdict.NeedsCorrection || verdict.CorrectionText != "Di 'I went'" {
		t.Errorf("Unexpected verdict %+v", verdict)
	}
	if verdict.RawFeedback == "" {
		t.Errorf("Expected raw feedback to be kept")
	}
}

func TestChatWithPartner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversation/partner" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"message":"What size?"}`))
	}))
	defer server.Close()

	reply, err := New(server.URL).ChatWithPartner(context.Background(), orchestrator.PartnerRequest{SessionID: "S1", Text: "A coffee"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if reply != "What size?" {
		t.Errorf("Expected What size?, got %q", reply)
	}
}

type countingToken struct {
	refreshes atomic.Int32
}

func (c *countingToken) Token(ctx context.Context) (string, error) {
	if c.refreshes.Load() > 0 {
		return "fresh", nil
	}
	return "stale", nil
}

func (c *countingToken) Refresh(ctx context.Context) (string, error) {
	c.refreshes.Add(1)
	return "fresh", nil
}

func TestRefreshOnUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	tokens := &countingToken{}
	reply, err := New(server.URL, WithTokenSource(tokens)).ChatWithPartner(context.Background(), orchestrator.PartnerRequest{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if reply != "ok" || tokens.refreshes.Load() != 1 {
		t.Errorf("Expected one refresh, got %d", tokens.refreshes.Load())
	}
}

func TestUnauthorizedAfterRefresh(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(server.URL, WithTokenSource(&countingToken{})).ChatWithPartner(context.Background(), orchestrator.PartnerRequest{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected exactly one retry, got %d calls", calls.Load())
	}
}

func TestStaticTokenCannotRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(server.URL, WithTokenSource(StaticToken("x"))).ChatWithPartner(context.Background(), orchestrator.PartnerRequest{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshingToken(t *testing.T) {
	n := 0
	ts := NewRefreshingToken(func(ctx context.Context) (string, error) {
		n++
		return "t" + string(rune('0'+n)), nil
	})
	first, _ := ts.Token(context.Background())
	again, _ := ts.Token(context.Background())
	if first != "t1" || again != "t1" {
		t.Errorf("Expected cached token, got %s %s", first, again)
	}
	refreshed, _ := ts.Refresh(context.Background())
	if refreshed != "t2" {
		t.Errorf("Expected t2, got %s", refreshed)
	}
}

func TestWireID(t *testing.T) {
	tests := []struct {
		id   wireID
		want string
	}{
		{"12", `12`},
		{"007", `"007"`},
		{"+5", `"+5"`},
		{"abc", `"abc"`},
		{"", `""`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.id)
		if err != nil || string(got) != tt.want {
			t.Errorf("Marshal(%q) = %s, %v; want %s", tt.id, got, err, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2024-05-01T10:00:00Z", "2024-05-01T10:00:00.5", "2024-05-01 10:00:00"} {
		if parseTime(s).IsZero() {
			t.Errorf("Expected %q to parse", s)
		}
	}
	if !parseTime("garbage").IsZero() {
		t.Errorf("Expected zero time for garbage")
	}
}
