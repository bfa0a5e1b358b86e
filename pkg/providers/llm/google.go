package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

type GoogleLLM struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewGoogleLLM(apiKey string, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleLLM{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
		client: http.DefaultClient,
	}
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

func (l *GoogleLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	var system []string
	var contents []googleContent
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
			continue
		case "assistant":
			contents = append(contents, googleContent{Role: "model", Parts: []googlePart{{Text: m.Content}}})
		default:
			contents = append(contents, googleContent{Role: "user", Parts: []googlePart{{Text: m.Content}}})
		}
	}

	payload := map[string]interface{}{
		"contents": contents,
	}
	if len(system) > 0 {
		payload["systemInstruction"] = googleContent{Parts: []googlePart{{Text: strings.Join(system, "\n\n")}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(l.Name(), resp); err != nil {
		return "", err
	}

	var result struct {
		Candidates []struct {
			Content googleContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%s: %w", l.Name(), ErrEmptyCompletion)
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}
