package orchestrator

import (
	"context"
	"sync"
)

// Providers bundles the collaborators of a conversation. Recognizer, TTS and
// Player may be nil; the conversation then runs without voice input or output.
type Providers struct {
	Sessions    SessionTransport
	Tutor       Tutor
	Partner     Partner
	Recognizer  Recognizer
	Permissions PermissionChecker
	TTS         TTSProvider
	Player      Player
	// Scenes serves key phrases; optional.
	Scenes SceneLevels
}

// Orchestrator holds the providers and configuration shared by conversations.
type Orchestrator struct {
	providers Providers
	config    Config
	logger    Logger
	mu        sync.RWMutex
}

func New(providers Providers, config Config) *Orchestrator {
	return NewWithLogger(providers, config, &NoOpLogger{})
}

// NewWithLogger creates an orchestrator with a custom logger.
// If logger is nil, a no-op logger is used.
func NewWithLogger(providers Providers, config Config, logger Logger) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Orchestrator{providers: providers, config: config, logger: logger}
}

// NewConversation wires a conversation for one scene. Call Open to create
// its session.
func (o *Orchestrator) NewConversation(ctx context.Context, params SessionParams) *Conversation {
	return newConversation(ctx, o.GetProviders(), o.GetConfig(), o.logger, params)
}

func (o *Orchestrator) UpdateConfig(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config = cfg
}

func (o *Orchestrator) GetConfig() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

func (o *Orchestrator) GetProviders() Providers {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.providers
}

// ProviderNames reports the name of each configured provider, "none" for
// the ones left out.
func (o *Orchestrator) ProviderNames() map[string]string {
	p := o.GetProviders()
	return map[string]string{
		"sessions":   nameOf(p.Sessions),
		"tutor":      nameOf(p.Tutor),
		"partner":    nameOf(p.Partner),
		"recognizer": nameOf(p.Recognizer),
		"tts":        nameOf(p.TTS),
		"player":     nameOf(p.Player),
		"scenes":     nameOf(p.Scenes),
	}
}

func nameOf(v interface{}) string {
	if v == nil {
		return "none"
	}
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}
