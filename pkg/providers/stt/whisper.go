package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"

	"github.com/XitingXie/partner/pkg/audio"
	"github.com/XitingXie/partner/pkg/orchestrator"
)

// WhisperSTT talks to any OpenAI-compatible /audio/transcriptions endpoint.
type WhisperSTT struct {
	name       string
	apiKey     string
	url        string
	model      string
	sampleRate int
	client     *http.Client
}

func NewOpenAISTT(apiKey string, model string) *WhisperSTT {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperSTT{
		name:       "openai_stt",
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
		client:     http.DefaultClient,
	}
}

func NewGroqSTT(apiKey string, model string) *WhisperSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &WhisperSTT{
		name:       "groq-stt",
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
		client:     http.DefaultClient,
	}
}

func (s *WhisperSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *WhisperSTT) SetURL(url string) {
	s.url = url
}

func (s *WhisperSTT) Name() string {
	return s.name
}

func (s *WhisperSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", err
		}
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.NewWavBuffer(audioPCM, s.sampleRate)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(s.name, resp); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}
