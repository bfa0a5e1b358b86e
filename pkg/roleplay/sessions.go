package roleplay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// LocalSessions hands out session ids without a backend.
type LocalSessions struct {
	now func() time.Time
}

func NewLocalSessions() *LocalSessions {
	return &LocalSessions{now: time.Now}
}

func (s *LocalSessions) Name() string {
	return "local_sessions"
}

func (s *LocalSessions) CreateSession(ctx context.Context, req orchestrator.SessionRequest) (*orchestrator.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &orchestrator.SessionInfo{ID: uuid.NewString(), StartedAt: s.now()}, nil
}
