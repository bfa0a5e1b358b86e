package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/XitingXie/partner/pkg/audio"
	"github.com/XitingXie/partner/pkg/orchestrator"
)

// AssemblyAISTT uploads the utterance, submits a transcript job and polls it.
type AssemblyAISTT struct {
	apiKey       string
	baseURL      string
	sampleRate   int
	pollInterval time.Duration
	client       *http.Client
}

func NewAssemblyAISTT(apiKey string) *AssemblyAISTT {
	return &AssemblyAISTT{
		apiKey:       apiKey,
		baseURL:      "https://api.assemblyai.com/v2",
		sampleRate:   44100,
		pollInterval: 500 * time.Millisecond,
		client:       http.DefaultClient,
	}
}

func (s *AssemblyAISTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *AssemblyAISTT) Name() string {
	return "assemblyai-stt"
}

func (s *AssemblyAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	uploadURL, err := s.upload(ctx, audio.NewWavBuffer(audioPCM, s.sampleRate))
	if err != nil {
		return "", err
	}
	transcriptID, err := s.submit(ctx, uploadURL, lang)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			job, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", err
			}
			switch job.Status {
			case "completed":
				return job.Text, nil
			case "error":
				return "", fmt.Errorf("assemblyai transcription failed: %s", job.Error)
			}
		}
	}
}

func (s *AssemblyAISTT) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(s.Name(), resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *AssemblyAISTT) upload(ctx context.Context, wav []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", bytes.NewReader(wav))
	if err != nil {
		return "", err
	}
	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := s.do(req, &result); err != nil {
		return "", err
	}
	if result.UploadURL == "" {
		return "", errors.New("assemblyai upload returned no url")
	}
	return result.UploadURL, nil
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string, lang orchestrator.Language) (string, error) {
	payload := map[string]interface{}{
		"audio_url": uploadURL,
	}
	if lang != "" {
		payload["language_code"] = string(lang)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		ID string `json:"id"`
	}
	if err := s.do(req, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("assemblyai returned no transcript id")
	}
	return result.ID, nil
}

type assemblyJob struct {
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (*assemblyJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/transcript/"+id, nil)
	if err != nil {
		return nil, err
	}
	var job assemblyJob
	if err := s.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
