package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/XitingXie/partner/pkg/audio"
	"github.com/XitingXie/partner/pkg/orchestrator"
)

func TestOpenAITTS(t *testing.T) {
	clip := audio.NewWavBuffer(make([]byte, 256), 24000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "wav" || body["voice"] != "shimmer" || body["input"] != "Say 'went'" {
			t.Errorf("unexpected request: %v", body)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(clip)
	}))
	defer server.Close()

	tts := NewOpenAITTS("test-key", "")
	tts.SetURL(server.URL)

	got, err := tts.Synthesize(context.Background(), "Say 'went'", orchestrator.VoiceF2, orchestrator.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(clip) {
		t.Errorf("expected %d bytes, got %d", len(clip), len(got))
	}
}

func TestOpenAITTSNoAudio(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"json error body with 200", "application/json; charset=utf-8", []byte(`{"error":{"message":"quota"}}`)},
		{"empty body", "audio/wav", nil},
		{"truncated header", "audio/wav", []byte("RIFF")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.Write(tt.body)
			}))
			defer server.Close()

			tts := NewOpenAITTS("k", "")
			tts.SetURL(server.URL)
			if _, err := tts.Synthesize(context.Background(), "hi", orchestrator.VoiceM1, orchestrator.LanguageEn); !errors.Is(err, orchestrator.ErrNoAudio) {
				t.Errorf("expected ErrNoAudio, got %v", err)
			}
		})
	}
}

func TestOpenAITTSStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	tts := NewOpenAITTS("k", "")
	tts.SetURL(server.URL)
	_, err := tts.Synthesize(context.Background(), "hi", orchestrator.VoiceM1, orchestrator.LanguageEn)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected APIError 401, got %v", err)
	}
	if tts.Abort() != nil {
		t.Errorf("expected Abort to be a no-op when idle")
	}
}
