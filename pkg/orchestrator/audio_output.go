package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/XitingXie/partner/pkg/audio"
)

// Player renders a WAV file and blocks until it finished or ctx is done.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Speaker is what a turn needs from the audio output.
type Speaker interface {
	Speak(ctx context.Context, req PlaybackRequest) error
}

type playback struct {
	cancel       context.CancelFunc
	done         chan struct{}
	synthesizing atomic.Bool
}

// AudioOutputController owns the single active playback. Speak replaces
// whatever is playing, and the previous clip's file is released before the
// next one is created.
type AudioOutputController struct {
	tts    TTSProvider
	player Player
	config Config
	logger Logger
	emit   func(EventType, interface{})

	speakMu sync.Mutex
	mu      sync.Mutex
	current *playback

	speaking    atomic.Bool
	handles     atomic.Int32
	peakHandles atomic.Int32
}

func NewAudioOutputController(tts TTSProvider, player Player, config Config, logger Logger) *AudioOutputController {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &AudioOutputController{
		tts:    tts,
		player: player,
		config: config,
		logger: logger,
		emit:   func(EventType, interface{}) {},
	}
}

func (a *AudioOutputController) OnEvent(fn func(EventType, interface{})) {
	if fn == nil {
		fn = func(EventType, interface{}) {}
	}
	a.emit = fn
}

// Enabled is false in text-only mode.
func (a *AudioOutputController) Enabled() bool {
	return a.tts != nil && a.player != nil
}

// Speak synthesizes and plays req, blocking until playback ends. A Speak or
// Stop from another goroutine cuts it short with a context error.
func (a *AudioOutputController) Speak(ctx context.Context, req PlaybackRequest) error {
	if !a.Enabled() {
		return ErrOutputDisabled
	}
	if strings.TrimSpace(req.Text) == "" {
		return ErrNoAudio
	}

	a.speakMu.Lock()
	a.stopCurrent()
	pctx, cancel := context.WithCancel(ctx)
	pb := &playback{cancel: cancel, done: make(chan struct{})}
	a.mu.Lock()
	a.current = pb
	a.mu.Unlock()
	a.speakMu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		if a.current == pb {
			a.current = nil
		}
		a.mu.Unlock()
		close(pb.done)
	}()

	a.setSpeaking(true)
	defer a.setSpeaking(false)
	return a.play(pctx, pb, req)
}

// Stop cancels the active playback and waits for its cleanup.
func (a *AudioOutputController) Stop() {
	a.speakMu.Lock()
	defer a.speakMu.Unlock()
	a.stopCurrent()
}

func (a *AudioOutputController) Speaking() bool {
	return a.speaking.Load()
}

// ActiveHandles is the number of clip files currently on disk.
func (a *AudioOutputController) ActiveHandles() int {
	return int(a.handles.Load())
}

func (a *AudioOutputController) PeakHandles() int {
	return int(a.peakHandles.Load())
}

func (a *AudioOutputController) stopCurrent() {
	a.mu.Lock()
	pb := a.current
	a.mu.Unlock()
	if pb == nil {
		return
	}
	pb.cancel()
	if pb.synthesizing.Load() {
		if err := a.tts.Abort(); err != nil {
			a.logger.Warn("failed to abort synthesis", "error", err)
		}
	}
	<-pb.done
}

func (a *AudioOutputController) play(ctx context.Context, pb *playback, req PlaybackRequest) error {
	synthCtx := ctx
	if a.config.TTSTimeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, seconds(a.config.TTSTimeout))
		defer cancel()
	}

	pb.synthesizing.Store(true)
	clip, err := a.tts.Synthesize(synthCtx, req.Text, req.Voice.Voice, req.Voice.Language)
	pb.synthesizing.Store(false)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNoAudio) {
			a.logger.Warn("synthesis returned no audio", "provider", a.tts.Name())
			return ErrNoAudio
		}
		a.logger.Error("synthesis failed", "provider", a.tts.Name(), "error", err)
		return fmt.Errorf("%w: %w", ErrAudioSynthesisFailed, err)
	}
	if !audio.IsWav(clip, a.config.MinAudioBytes) {
		a.logger.Warn("synthesized payload is not playable audio", "provider", a.tts.Name(), "bytes", len(clip))
		return ErrNoAudio
	}

	path, err := audio.WriteTempClip(a.config.AudioTempDir, clip)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioSynthesisFailed, err)
	}
	a.acquire()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove clip file", "path", path, "error", err)
		}
		a.handles.Add(-1)
	}()

	a.logger.Debug("playing clip", "voice", req.Voice.Voice, "locale", req.Voice.Locale, "bytes", len(clip))
	if err := a.player.Play(ctx, path); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Error("playback failed", "error", err)
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

func (a *AudioOutputController) acquire() {
	n := a.handles.Add(1)
	for {
		peak := a.peakHandles.Load()
		if n <= peak || a.peakHandles.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (a *AudioOutputController) setSpeaking(on bool) {
	a.speaking.Store(on)
	if on {
		a.emit(PlaybackStateChanged, PlaybackSpeaking)
	} else {
		a.emit(PlaybackStateChanged, PlaybackIdle)
	}
}
