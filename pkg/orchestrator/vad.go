package orchestrator

import (
	"time"

	"github.com/XitingXie/partner/pkg/audio"
)

// RMSVAD segments microphone frames into utterances by energy. A speech start
// needs minConfirmed loud frames in a row; a speech end needs silenceLimit of
// continuous quiet after that.
type RMSVAD struct {
	threshold    float64
	silenceLimit time.Duration
	minConfirmed int
	now          func() time.Time

	speaking     bool
	loudFrames   int
	silenceSince time.Time
	level        float64
}

func NewRMSVAD(threshold float64, silenceLimit time.Duration) *RMSVAD {
	return &RMSVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		minConfirmed: 5,
		now:          time.Now,
	}
}

func (v *RMSVAD) SetMinConfirmed(count int) {
	if count < 1 {
		count = 1
	}
	v.minConfirmed = count
}

// Level is the RMS of the last frame, used by the CLI input meter.
func (v *RMSVAD) Level() float64 {
	return v.level
}

func (v *RMSVAD) IsSpeaking() bool {
	return v.speaking
}

func (v *RMSVAD) Process(chunk []byte) (*VADEvent, error) {
	v.level = audio.RMS(chunk)
	now := v.now()

	if v.level > v.threshold {
		v.silenceSince = time.Time{}
		if v.speaking {
			return nil, nil
		}
		v.loudFrames++
		if v.loudFrames < v.minConfirmed {
			return nil, nil
		}
		v.speaking = true
		return &VADEvent{Type: VADSpeechStart, Timestamp: now.UnixMilli()}, nil
	}

	v.loudFrames = 0
	if !v.speaking {
		return &VADEvent{Type: VADSilence, Timestamp: now.UnixMilli()}, nil
	}
	if v.silenceSince.IsZero() {
		v.silenceSince = now
		return nil, nil
	}
	if now.Sub(v.silenceSince) < v.silenceLimit {
		return nil, nil
	}
	v.speaking = false
	v.silenceSince = time.Time{}
	return &VADEvent{Type: VADSpeechEnd, Timestamp: now.UnixMilli()}, nil
}

func (v *RMSVAD) Name() string {
	return "rms_vad"
}

func (v *RMSVAD) Reset() {
	v.speaking = false
	v.loudFrames = 0
	v.silenceSince = time.Time{}
	v.level = 0
}

// Clone returns a detector with the same tuning and fresh state.
func (v *RMSVAD) Clone() VADProvider {
	return &RMSVAD{
		threshold:    v.threshold,
		silenceLimit: v.silenceLimit,
		minConfirmed: v.minConfirmed,
		now:          v.now,
	}
}
