package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// OpenAILLM speaks the chat completions protocol. Groq and DeepSeek expose
// the same API under a different base URL.
type OpenAILLM struct {
	name        string
	apiKey      string
	url         string
	model       string
	temperature *float64
	client      *http.Client
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return newChatCompletions("openai-llm", apiKey, "https://api.openai.com/v1/chat/completions", model)
}

func NewGroqLLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return newChatCompletions("groq-llm", apiKey, "https://api.groq.com/openai/v1/chat/completions", model)
}

func NewDeepSeekLLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "deepseek-chat"
	}
	return newChatCompletions("deepseek-llm", apiKey, "https://api.deepseek.com/chat/completions", model)
}

func newChatCompletions(name, apiKey, url, model string) *OpenAILLM {
	return &OpenAILLM{name: name, apiKey: apiKey, url: url, model: model, client: http.DefaultClient}
}

func (l *OpenAILLM) SetURL(url string) {
	l.url = url
}

func (l *OpenAILLM) SetTemperature(t float64) {
	l.temperature = &t
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
	}
	if l.temperature != nil {
		payload["temperature"] = *l.temperature
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
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(l.name, resp); err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", l.name, ErrEmptyCompletion)
	}
	return result.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) Name() string {
	return l.name
}
