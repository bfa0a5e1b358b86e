package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

// Microphone is an exclusive capture device. Open fails with ErrDeviceBusy
// while another caller holds it.
type Microphone interface {
	Open(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// VADRecognizer captures one utterance with a VAD and transcribes it with an
// STT provider once the speaker goes quiet.
type VADRecognizer struct {
	mic    Microphone
	vad    VADProvider
	stt    STTProvider
	config Config
	logger Logger
}

func NewVADRecognizer(mic Microphone, vad VADProvider, stt STTProvider, config Config, logger Logger) *VADRecognizer {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &VADRecognizer{mic: mic, vad: vad, stt: stt, config: config, logger: logger}
}

func (r *VADRecognizer) Name() string {
	if r.stt == nil {
		return "vad"
	}
	return "vad+" + r.stt.Name()
}

func (r *VADRecognizer) Recognize(ctx context.Context, lang Language, cb RecognitionCallbacks) (string, error) {
	if r.mic == nil || r.vad == nil || r.stt == nil {
		return "", ErrNilProvider
	}

	frames, err := r.mic.Open(ctx)
	if err != nil {
		return "", err
	}
	pcm, err := r.capture(ctx, frames, cb)
	if closeErr := r.mic.Close(); closeErr != nil {
		r.logger.Warn("failed to release microphone", "error", closeErr)
	}
	if err != nil {
		return "", err
	}

	if cb.OnEndOfSpeech != nil {
		cb.OnEndOfSpeech()
	}

	if r.config.STTTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, seconds(r.config.STTTimeout))
		defer cancel()
	}
	r.logger.Debug("transcribing utterance", "bytes", len(pcm), "provider", r.stt.Name())
	text, err := r.stt.Transcribe(ctx, pcm, lang)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (r *VADRecognizer) capture(ctx context.Context, frames <-chan []byte, cb RecognitionCallbacks) ([]byte, error) {
	vad := r.vad.Clone()

	bytesPerSecond := r.config.SampleRate * r.config.Channels * r.config.BytesPerSamp
	preRoll := bytesPerSecond / 2

	noSpeechAfter := r.config.NoSpeechTimeout
	if noSpeechAfter <= 0 {
		noSpeechAfter = 8 * time.Second
	}
	noSpeech := time.NewTimer(noSpeechAfter)
	defer noSpeech.Stop()

	var (
		buf      bytes.Buffer
		speaking bool
		maxLen   <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-noSpeech.C:
			if !speaking {
				return nil, ErrNoSpeech
			}

		case <-maxLen:
			r.logger.Info("utterance hit the length limit", "limit", r.config.MaxUtterance)
			return buf.Bytes(), nil

		case chunk, ok := <-frames:
			if !ok {
				if speaking && buf.Len() > 0 {
					return buf.Bytes(), nil
				}
				return nil, ErrNoSpeech
			}
			buf.Write(chunk)

			ev, err := vad.Process(chunk)
			if err != nil {
				return nil, err
			}
			if ev != nil {
				switch ev.Type {
				case VADSpeechStart:
					speaking = true
					noSpeech.Stop()
					if r.config.MaxUtterance > 0 {
						maxLen = time.After(r.config.MaxUtterance)
					}
					if cb.OnSpeechStart != nil {
						cb.OnSpeechStart()
					}
				case VADSpeechEnd:
					return buf.Bytes(), nil
				}
			}

			// Keep a short pre-roll so the first syllable survives the
			// onset confirmation delay.
			if !speaking && preRoll > 0 && buf.Len() > 2*preRoll {
				tail := append([]byte(nil), buf.Bytes()[buf.Len()-preRoll:]...)
				buf.Reset()
				buf.Write(tail)
			}
		}
	}
}
