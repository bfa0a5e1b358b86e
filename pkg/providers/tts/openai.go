package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/XitingXie/partner/pkg/audio"
	"github.com/XitingXie/partner/pkg/orchestrator"
)

// openAIVoices maps the shared voice ids onto OpenAI's named voices.
var openAIVoices = map[orchestrator.Voice]string{
	orchestrator.VoiceF1: "nova",
	orchestrator.VoiceF2: "shimmer",
	orchestrator.VoiceF3: "alloy",
	orchestrator.VoiceF4: "coral",
	orchestrator.VoiceF5: "sage",
	orchestrator.VoiceM1: "onyx",
	orchestrator.VoiceM2: "echo",
	orchestrator.VoiceM3: "fable",
	orchestrator.VoiceM4: "ash",
	orchestrator.VoiceM5: "ballad",
}

// APIError is a non-2xx response from a speech endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// OpenAITTS requests a complete WAV clip from /v1/audio/speech.
type OpenAITTS struct {
	apiKey string
	url    string
	model  string
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewOpenAITTS(apiKey string, model string) *OpenAITTS {
	if model == "" {
		model = "tts-1"
	}
	return &OpenAITTS{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/speech",
		model:  model,
		client: http.DefaultClient,
	}
}

func (t *OpenAITTS) SetURL(url string) {
	t.url = url
}

func (t *OpenAITTS) Name() string {
	return "openai-tts"
}

func (t *OpenAITTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		cancel()
	}()

	name, ok := openAIVoices[voice]
	if !ok {
		name = "alloy"
	}
	body, err := json.Marshal(map[string]interface{}{
		"model":           t.model,
		"input":           text,
		"voice":           name,
		"response_format": "wav",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Provider: t.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	// A 200 carrying a JSON body is an error report, not audio.
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		return nil, fmt.Errorf("%w: %s returned %s", orchestrator.ErrNoAudio, t.Name(), strings.TrimSpace(string(payload)))
	}
	if !audio.IsWav(payload, 0) {
		return nil, fmt.Errorf("%w: %s returned %d bytes of non-wav data", orchestrator.ErrNoAudio, t.Name(), len(payload))
	}
	return payload, nil
}

// Abort cancels the in-flight request, if any.
func (t *OpenAITTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
