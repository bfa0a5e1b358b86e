package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrEmptyCompletion = errors.New("model returned no completion")

// APIError is a non-2xx response from a completion endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

func checkResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
