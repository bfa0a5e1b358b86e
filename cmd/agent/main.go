package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/XitingXie/partner/pkg/orchestrator"
	"github.com/XitingXie/partner/pkg/providers/backend"
	llmProvider "github.com/XitingXie/partner/pkg/providers/llm"
	sttProvider "github.com/XitingXie/partner/pkg/providers/stt"
	ttsProvider "github.com/XitingXie/partner/pkg/providers/tts"
	"github.com/XitingXie/partner/pkg/roleplay"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}

	zl := newLogger(cfg.LogLevel, cfg.LogFormat)
	defer zl.Sync()
	logger := &zapLogger{s: zl.Sugar()}

	ocfg := orchestrator.DefaultConfig()
	ocfg.Language = cfg.Language
	ocfg.DefaultFirstLanguage = cfg.FirstLanguage
	ocfg.ProficiencyLevel = cfg.Level
	ocfg.SampleRate = cfg.SampleRate
	ocfg.NoSpeechTimeout = cfg.NoSpeech

	providers, err := buildConversationProviders(cfg, ocfg, logger)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Voice {
		mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			logger.Warn("audio unavailable, continuing text-only", "error", err)
		} else {
			defer func() {
				_ = mctx.Uninit()
				mctx.Free()
			}()
			buildVoiceProviders(&providers, mctx, cfg, ocfg, logger)
		}
	}

	orch := orchestrator.NewWithLogger(providers, ocfg, logger.With("orchestrator"))
	names := orch.ProviderNames()
	fmt.Printf("Configured: Sessions=%s | Tutor=%s | Partner=%s | Scenes=%s | STT=%s | TTS=%s\n",
		names["sessions"], names["tutor"], names["partner"], names["scenes"], names["recognizer"], names["tts"])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv := orch.NewConversation(ctx, orchestrator.SessionParams{
		UserID:           cfg.UserID,
		SceneID:          cfg.SceneID,
		TopicID:          cfg.TopicID,
		FirstLanguage:    cfg.FirstLanguage,
		ProficiencyLevel: cfg.Level,
	})
	defer conv.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printEvents(conv)
		return nil
	})

	if err := conv.Open(gctx); err != nil {
		fmt.Printf("Could not start the conversation: %v\n", err)
		_ = g.Wait()
		os.Exit(1)
	}

	fmt.Println("Type a sentence and press Enter. Commands: /mic /stop /feedback /phrases /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	g.Go(func() error {
		defer conv.Close()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if quit := handleLine(gctx, conv, line); quit {
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("agent stopped", "error", err)
	}
	fmt.Println("Shutting down...")
}

func handleLine(ctx context.Context, conv *orchestrator.Conversation, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/mic":
		if _, err := conv.StartListening(); err != nil {
			fmt.Printf("Cannot listen: %v\n", err)
		}
		return false
	case "/stop":
		conv.StopListening()
		conv.StopSpeaking()
		return false
	case "/feedback":
		conv.SetShowFeedback(!conv.ShowFeedback())
		fmt.Printf("Feedback display: %v\n", conv.ShowFeedback())
		return false
	case "/ok":
		conv.Acknowledge()
		return false
	case "/phrases":
		level, err := conv.KeyPhrases(ctx)
		if err != nil {
			fmt.Printf("Could not load key phrases: %v\n", err)
			return false
		}
		printSceneLevel(level)
		return false
	}

	go func() {
		// other failures arrive as TurnFailed events
		_, err := conv.Submit(ctx, line)
		if errors.Is(err, orchestrator.ErrTurnInFlight) || errors.Is(err, orchestrator.ErrInputDisabled) {
			fmt.Println("Please wait for the current turn to finish.")
		}
	}()
	return false
}

func printEvents(conv *orchestrator.Conversation) {
	for event := range conv.Events() {
		switch event.Type {
		case orchestrator.SessionReady:
			fmt.Printf("[SESSION] %s ready\n", event.SessionID)
		case orchestrator.SessionFailed:
			fmt.Printf("[ERROR] Could not start session: %v\n", event.Data)
		case orchestrator.TranscriptChanged:
			entries, _ := event.Data.([]orchestrator.TranscriptEntry)
			if len(entries) > 0 {
				printEntry(entries[len(entries)-1], conv.ShowFeedback())
			}
		case orchestrator.TranscriptPartial:
			fmt.Printf("\r\033[K... %v", event.Data)
		case orchestrator.MicStateChanged:
			if event.Data == orchestrator.MicListening {
				fmt.Println("\r\033[K[MIC] Listening...")
			}
		case orchestrator.PlaybackStateChanged:
			if event.Data == orchestrator.PlaybackSpeaking {
				fmt.Println("[TTS] Speaking...")
			}
		case orchestrator.PermissionRequired:
			fmt.Println("[MIC] Microphone access is required for voice input")
		case orchestrator.RecognitionFailed:
			fmt.Printf("\r\033[K[MIC] %v\n", event.Data)
		case orchestrator.TurnFailed:
			if failure, ok := event.Data.(orchestrator.TurnFailure); ok {
				fmt.Printf("[ERROR] %s (type /ok to dismiss)\n", failure.Reason)
			}
		case orchestrator.PlaybackFailed:
			fmt.Printf("[TTS] %v\n", event.Data)
		}
	}
}

func printSceneLevel(l *orchestrator.SceneLevel) {
	orNone := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "None"
		}
		return s
	}
	fmt.Printf("[%s %s]\n", l.SceneID, l.Level)
	fmt.Printf("Key phrases:\n%s\n", orNone(l.KeyPhrases))
	fmt.Printf("Vocabulary:\n%s\n", orNone(l.Vocabulary))
	fmt.Printf("Grammar points:\n%s\n", orNone(l.GrammarPoints))
	fmt.Printf("Example dialogs:\n%s\n", orNone(l.ExampleDialogs))
}

func printEntry(e orchestrator.TranscriptEntry, showFeedback bool) {
	if e.IsUser {
		fmt.Printf("\r\033[KYou: %s\n", e.Content)
		if showFeedback && e.Feedback != "" {
			fmt.Printf("  Tutor: %s\n", e.Feedback)
		}
		return
	}
	fmt.Printf("Partner: %s\n", e.Content)
}

func buildConversationProviders(cfg *Config, ocfg orchestrator.Config, logger *zapLogger) (orchestrator.Providers, error) {
	if cfg.Mode == "backend" {
		opts := []backend.Option{backend.WithLogger(logger.With("backend"))}
		if cfg.BackendToken != "" {
			opts = append(opts, backend.WithTokenSource(backend.StaticToken(cfg.BackendToken)))
		}
		client := backend.New(cfg.BackendURL, opts...)
		return orchestrator.Providers{Sessions: client, Tutor: client, Partner: client, Scenes: client}, nil
	}

	llm, err := buildLLM(cfg)
	if err != nil {
		return orchestrator.Providers{}, err
	}
	scenes := roleplay.DefaultScenes()
	return orchestrator.Providers{
		Sessions: roleplay.NewLocalSessions(),
		Tutor:    roleplay.NewTutor(llm, scenes, ocfg, logger.With("tutor")),
		Partner:  roleplay.NewPartner(llm, scenes, ocfg, logger.With("partner")),
		Scenes:   scenes,
	}, nil
}

func buildLLM(cfg *Config) (orchestrator.LLMProvider, error) {
	key := cfg.llmKey()
	if key == "" {
		return nil, fmt.Errorf("no API key for LLM provider %s", cfg.LLMProvider)
	}
	switch cfg.LLMProvider {
	case "openai":
		return llmProvider.NewOpenAILLM(key, "gpt-4o"), nil
	case "anthropic":
		return llmProvider.NewAnthropicLLM(key, "claude-3-5-sonnet-20241022"), nil
	case "google":
		return llmProvider.NewGoogleLLM(key, "gemini-1.5-flash"), nil
	case "deepseek":
		return llmProvider.NewDeepSeekLLM(key, "deepseek-chat"), nil
	default:
		return llmProvider.NewGroqLLM(key, "llama-3.3-70b-versatile"), nil
	}
}

// buildVoiceProviders fills in recognition and playback. A missing key leaves
// that side nil so the conversation runs without it.
func buildVoiceProviders(p *orchestrator.Providers, mctx *malgo.AllocatedContext, cfg *Config, ocfg orchestrator.Config, logger *zapLogger) {
	if stt := buildSTT(cfg); stt != nil {
		vad := orchestrator.NewRMSVAD(cfg.VADThreshold, cfg.SilenceLimit)
		mic := newCaptureMic(mctx, cfg.SampleRate, logger.With("mic"))
		p.Recognizer = orchestrator.NewVADRecognizer(mic, vad, stt, ocfg, logger.With("recognizer"))
		p.Permissions = devicePermissions{mctx: mctx}
	} else {
		logger.Warn("no STT provider configured, voice input disabled", "provider", cfg.STTProvider)
	}

	if tts := buildTTS(cfg); tts != nil {
		p.TTS = tts
		p.Player = newDevicePlayer(mctx)
	} else {
		logger.Warn("no TTS provider configured, voice output disabled", "provider", cfg.TTSProvider)
	}
}

func buildSTT(cfg *Config) orchestrator.STTProvider {
	var stt orchestrator.STTProvider
	switch cfg.STTProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil
		}
		stt = sttProvider.NewOpenAISTT(cfg.OpenAIKey, "whisper-1")
	case "deepgram":
		if cfg.DeepgramKey == "" {
			return nil
		}
		stt = sttProvider.NewDeepgramSTT(cfg.DeepgramKey)
	case "assemblyai":
		if cfg.AssemblyKey == "" {
			return nil
		}
		stt = sttProvider.NewAssemblyAISTT(cfg.AssemblyKey)
	default:
		if cfg.GroqKey == "" {
			return nil
		}
		stt = sttProvider.NewGroqSTT(cfg.GroqKey, getEnv("GROQ_STT_MODEL", "whisper-large-v3-turbo"))
	}
	if s, ok := stt.(interface{ SetSampleRate(int) }); ok {
		s.SetSampleRate(cfg.SampleRate)
	}
	return stt
}

func buildTTS(cfg *Config) orchestrator.TTSProvider {
	switch cfg.TTSProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil
		}
		return ttsProvider.NewOpenAITTS(cfg.OpenAIKey, "gpt-4o-mini-tts")
	default:
		if cfg.LokutorKey == "" {
			return nil
		}
		return ttsProvider.NewLokutorTTS(cfg.LokutorKey)
	}
}
