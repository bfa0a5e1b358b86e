package orchestrator

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// STTProvider turns a buffered 16-bit PCM utterance into text.
type STTProvider interface {
	Transcribe(ctx context.Context, audio []byte, lang Language) (string, error)
	Name() string
}

type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// TTSProvider synthesizes text into a complete WAV clip.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	// Abort forces any in-progress synthesis to stop immediately.
	Abort() error
	Name() string
}

type VADProvider interface {
	Process(chunk []byte) (*VADEvent, error)
	Reset()
	Clone() VADProvider
	Name() string
}

type VADEventType string

const (
	VADSpeechStart VADEventType = "SPEECH_START"
	VADSpeechEnd   VADEventType = "SPEECH_END"
	VADSilence     VADEventType = "SILENCE"
)

type VADEvent struct {
	Type      VADEventType
	Timestamp int64
}

type EventType string

const (
	SessionReady         EventType = "SESSION_READY"
	SessionFailed        EventType = "SESSION_FAILED"
	InputChanged         EventType = "INPUT_CHANGED"
	TurnStateChanged     EventType = "TURN_STATE_CHANGED"
	TranscriptChanged    EventType = "TRANSCRIPT_CHANGED"
	TranscriptPartial    EventType = "TRANSCRIPT_PARTIAL"
	MicStateChanged      EventType = "MIC_STATE_CHANGED"
	PlaybackStateChanged EventType = "PLAYBACK_STATE_CHANGED"
	PermissionRequired   EventType = "PERMISSION_REQUIRED"
	RecognitionFailed    EventType = "RECOGNITION_FAILED"
	// CorrectionSpoken carries the tutor's correction text (payload is string)
	CorrectionSpoken EventType = "CORRECTION_SPOKEN"
	// PartnerReplied carries the partner's reply text (payload is string)
	PartnerReplied EventType = "PARTNER_REPLIED"
	TurnFailed     EventType = "TURN_FAILED"
	PlaybackFailed EventType = "PLAYBACK_FAILED"
)

type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// TurnFailure is the payload of a TurnFailed event.
type TurnFailure struct {
	Reason string
	Err    error
}

type MicState string

const (
	MicIdle      MicState = "IDLE"
	MicListening MicState = "LISTENING"
)

type PlaybackState string

const (
	PlaybackIdle     PlaybackState = "IDLE"
	PlaybackSpeaking PlaybackState = "SPEAKING"
)

type Voice string

// Lokutor voices.
const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
	LanguageAr Language = "ar"
	LanguageKo Language = "ko"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session binds a learner, a scene/topic and a proficiency level for one conversation.
type Session struct {
	ID               string
	UserID           string
	SceneID          string
	TopicID          string
	FirstLanguage    Language
	ProficiencyLevel string
	StartedAt        time.Time
}

type UtteranceSource string

const (
	SourceTyped  UtteranceSource = "typed"
	SourceSpoken UtteranceSource = "spoken"
)

type Utterance struct {
	Text     string
	Source   UtteranceSource
	Sequence int
}

// TurnResult is the outcome of one turn. A completed turn carries exactly one of
// CorrectionMessage or PartnerMessage.
type TurnResult struct {
	NeedsCorrection   bool
	CorrectionMessage string
	PartnerMessage    string
}

type TranscriptEntry struct {
	ID       int
	IsUser   bool
	Content  string
	Feedback string
}

type PlaybackRequest struct {
	Text  string
	Voice VoiceProfile
}

type Config struct {
	SampleRate   int
	Channels     int
	BytesPerSamp int
	// Language the scene is played in; partner replies are spoken in it.
	Language             Language
	DefaultFirstLanguage Language
	ProficiencyLevel     string
	Voices               VoicePolicy
	WelcomeMessage       string
	AudioTempDir         string
	// Synthesized payloads shorter than this are treated as "no audio".
	MinAudioBytes   int
	NoSpeechTimeout time.Duration
	MaxUtterance    time.Duration
	STTTimeout      uint
	TutorTimeout    uint
	PartnerTimeout  uint
	TTSTimeout      uint
	EventBuffer     int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:           44100,
		Channels:             1,
		BytesPerSamp:         2,
		Language:             LanguageEn,
		DefaultFirstLanguage: LanguageEn,
		ProficiencyLevel:     "B1",
		Voices:               DefaultVoicePolicy(),
		WelcomeMessage:       "Welcome! How can I help you today?",
		MinAudioBytes:        64,
		NoSpeechTimeout:      8 * time.Second,
		MaxUtterance:         30 * time.Second,
		STTTimeout:           30,
		TutorTimeout:         30,
		PartnerTimeout:       30,
		TTSTimeout:           30,
		EventBuffer:          1024,
	}
}

func seconds(n uint) time.Duration {
	return time.Duration(n) * time.Second
}
