package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// SceneLevel is the study material of a scene at one proficiency level.
type SceneLevel struct {
	SceneID        string
	Level          string
	KeyPhrases     string
	Vocabulary     string
	GrammarPoints  string
	ExampleDialogs string
}

type SceneLevels interface {
	SceneLevel(ctx context.Context, sceneID, level string) (*SceneLevel, error)
}

// sceneGuide loads the key phrases of the conversation's scene once and
// keeps them for the rest of the conversation.
type sceneGuide struct {
	source SceneLevels
	logger Logger

	mu     sync.Mutex
	cached *SceneLevel
}

func (g *sceneGuide) load(ctx context.Context, sceneID, level string) (*SceneLevel, error) {
	if g.source == nil {
		return nil, fmt.Errorf("%w: %w", ErrSceneLevelUnavailable, ErrNilProvider)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached != nil && g.cached.SceneID == sceneID && strings.EqualFold(g.cached.Level, level) {
		out := *g.cached
		return &out, nil
	}

	sl, err := g.source.SceneLevel(ctx, sceneID, level)
	if err != nil {
		g.logger.Warn("scene level unavailable", "sceneID", sceneID, "level", level, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSceneLevelUnavailable, err)
	}
	if sl == nil {
		return nil, fmt.Errorf("%w: empty answer", ErrSceneLevelUnavailable)
	}
	stored := *sl
	if stored.SceneID == "" {
		stored.SceneID = sceneID
	}
	if stored.Level == "" {
		stored.Level = level
	}
	g.cached = &stored
	out := stored
	return &out, nil
}
