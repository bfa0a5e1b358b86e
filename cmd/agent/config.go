package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// Config is read from the environment, after .env has been loaded.
type Config struct {
	// Mode is "backend" (conversation API) or "local" (LLM roleplay).
	Mode         string
	BackendURL   string
	BackendToken string

	UserID        string
	SceneID       string
	TopicID       string
	Language      orchestrator.Language
	FirstLanguage orchestrator.Language
	Level         string

	STTProvider string
	LLMProvider string
	TTSProvider string
	Voice       bool

	GroqKey      string
	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
	DeepSeekKey  string
	DeepgramKey  string
	AssemblyKey  string
	LokutorKey   string

	SampleRate   int
	VADThreshold float64
	SilenceLimit time.Duration
	NoSpeech     time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		Mode:          strings.ToLower(getEnv("PARTNER_MODE", "backend")),
		BackendURL:    getEnv("BACKEND_URL", "http://localhost:5000"),
		BackendToken:  getEnv("BACKEND_TOKEN", ""),
		UserID:        getEnv("USER_ID", "1"),
		SceneID:       getEnv("SCENE_ID", "cafe"),
		TopicID:       getEnv("TOPIC_ID", "1"),
		Language:      orchestrator.Language(getEnv("AGENT_LANGUAGE", "en")),
		FirstLanguage: orchestrator.Language(getEnv("FIRST_LANGUAGE", "en")),
		Level:         getEnv("PROFICIENCY_LEVEL", "B1"),
		STTProvider:   getEnv("STT_PROVIDER", "groq"),
		LLMProvider:   getEnv("LLM_PROVIDER", "groq"),
		TTSProvider:   getEnv("TTS_PROVIDER", "lokutor"),
		Voice:         getEnvBool("VOICE_ENABLED", true),
		GroqKey:       os.Getenv("GROQ_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GoogleKey:     os.Getenv("GOOGLE_API_KEY"),
		DeepSeekKey:   os.Getenv("DEEPSEEK_API_KEY"),
		DeepgramKey:   os.Getenv("DEEPGRAM_API_KEY"),
		AssemblyKey:   os.Getenv("ASSEMBLYAI_API_KEY"),
		LokutorKey:    os.Getenv("LOKUTOR_API_KEY"),
		SampleRate:    getEnvInt("SAMPLE_RATE", 44100),
		VADThreshold:  getEnvFloat("VAD_THRESHOLD", 0.02),
		SilenceLimit:  getEnvDuration("VAD_SILENCE", 800*time.Millisecond),
		NoSpeech:      getEnvDuration("NO_SPEECH_TIMEOUT", 8*time.Second),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var knownLanguages = map[orchestrator.Language]bool{
	orchestrator.LanguageEn: true,
	orchestrator.LanguageEs: true,
	orchestrator.LanguageFr: true,
	orchestrator.LanguageDe: true,
	orchestrator.LanguageIt: true,
	orchestrator.LanguagePt: true,
	orchestrator.LanguageJa: true,
	orchestrator.LanguageZh: true,
	orchestrator.LanguageAr: true,
	orchestrator.LanguageKo: true,
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "backend":
		if c.BackendURL == "" {
			return fmt.Errorf("BACKEND_URL cannot be empty in backend mode")
		}
	case "local":
		if c.llmKey() == "" {
			return fmt.Errorf("an API key for LLM_PROVIDER=%s is required in local mode", c.LLMProvider)
		}
	default:
		return fmt.Errorf("PARTNER_MODE must be backend or local, got %q", c.Mode)
	}
	if c.UserID == "" {
		return fmt.Errorf("USER_ID cannot be empty")
	}
	if !knownLanguages[c.Language] {
		return fmt.Errorf("unsupported AGENT_LANGUAGE %q", c.Language)
	}
	if !knownLanguages[c.FirstLanguage] {
		return fmt.Errorf("unsupported FIRST_LANGUAGE %q", c.FirstLanguage)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be > 0")
	}
	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		return fmt.Errorf("VAD_THRESHOLD must be in (0, 1)")
	}
	return nil
}

func (c *Config) llmKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIKey
	case "anthropic":
		return c.AnthropicKey
	case "google":
		return c.GoogleKey
	case "deepseek":
		return c.DeepSeekKey
	default:
		return c.GroqKey
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
