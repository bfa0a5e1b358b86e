package backend

import (
	"context"
	"errors"
	"sync"
)

var ErrUnauthorized = errors.New("backend rejected credentials")

// TokenSource supplies bearer tokens. Refresh is called once after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticToken never changes; a 401 with it is final.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

func (t StaticToken) Refresh(ctx context.Context) (string, error) {
	return "", ErrUnauthorized
}

// RefreshingToken caches a token and obtains a new one through fetch when
// the backend rejects it.
type RefreshingToken struct {
	fetch func(ctx context.Context) (string, error)

	mu    sync.Mutex
	token string
}

func NewRefreshingToken(fetch func(ctx context.Context) (string, error)) *RefreshingToken {
	return &RefreshingToken{fetch: fetch}
}

func (t *RefreshingToken) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" {
		return t.token, nil
	}
	token, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	return token, nil
}

func (t *RefreshingToken) Refresh(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, err := t.fetch(ctx)
	if err != nil {
		t.token = ""
		return "", err
	}
	t.token = token
	return token, nil
}
