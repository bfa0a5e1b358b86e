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

type AnthropicLLM struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey:    apiKey,
		url:       "https://api.anthropic.com/v1/messages",
		model:     model,
		maxTokens: 1024,
		client:    http.DefaultClient,
	}
}

func (l *AnthropicLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	var system []string
	var turns []map[string]string
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   turns,
		"max_tokens": l.maxTokens,
	}
	if len(system) > 0 {
		payload["system"] = strings.Join(system, "\n\n")
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
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(l.Name(), resp); err != nil {
		return "", err
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%s: %w", l.Name(), ErrEmptyCompletion)
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}
