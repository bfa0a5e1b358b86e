package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// APIError is a non-2xx answer from the conversation backend.
type APIError struct {
	Path       string
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s (request %s)", e.Path, e.StatusCode, e.Body, e.RequestID)
}

// Client implements session creation, tutor evaluation and partner replies
// against the conversation REST API.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	logger         orchestrator.Logger
	sessionRetries int
	retryBackoff   time.Duration
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l orchestrator.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSessionRetries sets how often session creation is retried after a
// transport error. HTTP error answers are never retried.
func WithSessionRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.sessionRetries = n
		c.retryBackoff = backoff
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: 60 * time.Second},
		logger:         &orchestrator.NoOpLogger{},
		sessionRetries: 2,
		retryBackoff:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return "backend"
}

type createSessionRequest struct {
	UserID  wireID `json:"user_id"`
	SceneID wireID `json:"scene_id"`
	TopicID wireID `json:"topic_id"`
}

type createSessionResponse struct {
	ID        wireID `json:"id"`
	StartedAt string `json:"started_at"`
}

func (c *Client) CreateSession(ctx context.Context, req orchestrator.SessionRequest) (*orchestrator.SessionInfo, error) {
	in := createSessionRequest{UserID: wireID(req.UserID), SceneID: wireID(req.SceneID), TopicID: wireID(req.TopicID)}

	var (
		out createSessionResponse
		err error
	)
	for attempt := 0; attempt <= c.sessionRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying session creation", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}
		err = c.post(ctx, "/api/conversation/session", in, &out)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("backend returned a session without id")
	}
	return &orchestrator.SessionInfo{ID: string(out.ID), StartedAt: parseTime(out.StartedAt)}, nil
}

type chatRequest struct {
	SessionID     string `json:"session_id"`
	SceneID       wireID `json:"scene_id"`
	UserID        wireID `json:"user_id"`
	UserInput     string `json:"user_input"`
	FirstLanguage string `json:"first_language,omitempty"`
}

type tutorResponse struct {
	NeedsCorrection bool   `json:"needs_correction"`
	TutorMessage    string `json:"tutor_message"`
	Feedback        string `json:"feedback"`
}

func (c *Client) ChatWithTutor(ctx context.Context, req orchestrator.TutorRequest) (*orchestrator.TutorVerdict, error) {
	var out tutorResponse
	err := c.post(ctx, "/api/conversation/tutor", chatRequest{
		SessionID:     req.SessionID,
		SceneID:       wireID(req.SceneID),
		UserID:        wireID(req.UserID),
		UserInput:     req.Text,
		FirstLanguage: string(req.FirstLanguage),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &orchestrator.TutorVerdict{
		NeedsCorrection: out.NeedsCorrection,
		CorrectionText:  out.TutorMessage,
		RawFeedback:     out.Feedback,
	}, nil
}

func (c *Client) ChatWithPartner(ctx context.Context, req orchestrator.PartnerRequest) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.post(ctx, "/api/conversation/partner", chatRequest{
		SessionID: req.SessionID,
		SceneID:   wireID(req.SceneID),
		UserID:    wireID(req.UserID),
		UserInput: req.Text,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

type sceneLevelResponse struct {
	SceneID        wireID `json:"scene_id"`
	Level          string `json:"english_level"`
	KeyPhrases     string `json:"key_phrases"`
	Vocabulary     string `json:"vocabulary"`
	GrammarPoints  string `json:"grammar_points"`
	ExampleDialogs string `json:"example_dialogs"`

	// camelCase spelling used by the mobile client
	SceneIDCamel        wireID `json:"sceneId"`
	LevelCamel          string `json:"englishLevel"`
	KeyPhrasesCamel     string `json:"keyPhrases"`
	GrammarPointsCamel  string `json:"grammarPoints"`
	ExampleDialogsCamel string `json:"exampleDialogs"`
}

func (c *Client) SceneLevel(ctx context.Context, sceneID, level string) (*orchestrator.SceneLevel, error) {
	var out sceneLevelResponse
	path := "/api/scenes/" + url.PathEscape(sceneID) + "/levels/" + url.PathEscape(level)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &orchestrator.SceneLevel{
		SceneID:        string(firstNonEmpty(out.SceneID, out.SceneIDCamel)),
		Level:          firstNonEmpty(out.Level, out.LevelCamel),
		KeyPhrases:     firstNonEmpty(out.KeyPhrases, out.KeyPhrasesCamel),
		Vocabulary:     out.Vocabulary,
		GrammarPoints:  firstNonEmpty(out.GrammarPoints, out.GrammarPointsCamel),
		ExampleDialogs: firstNonEmpty(out.ExampleDialogs, out.ExampleDialogsCamel),
	}, nil
}

func firstNonEmpty[T ~string](values ...T) T {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	refreshed := false
	for {
		requestID := uuid.NewString()
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if c.tokens != nil {
			token, err := c.tokens.Token(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrUnauthorized, err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		c.logger.Debug("backend call", "method", method, "path", path, "status", resp.StatusCode, "requestID", requestID, "elapsed", time.Since(start))

		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil && !refreshed {
			resp.Body.Close()
			refreshed = true
			if _, err := c.tokens.Refresh(ctx); err != nil {
				return fmt.Errorf("%w: %w", ErrUnauthorized, err)
			}
			continue
		}

		err = decode(resp, path, requestID, out)
		resp.Body.Close()
		return err
	}
}

func decode(resp *http.Response, path, requestID string, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw)), RequestID: requestID}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s: decode response: %w", path, err)
	}
	return nil
}

// retryable reports failures to reach the server at all. Once a request
// may have been received, a repeated POST could create a second session.
func retryable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
