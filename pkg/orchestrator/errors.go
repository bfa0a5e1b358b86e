package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrSessionCreationFailed is fatal to the conversation that attempted it
	ErrSessionCreationFailed = errors.New("could not start session")

	// ErrSessionExists is returned when a manager already holds a session
	ErrSessionExists = errors.New("session already created")

	// ErrNoSession is returned when a turn is submitted before the session is ready
	ErrNoSession = errors.New("session not ready")

	// ErrTutorEvaluationFailed is returned when the tutor could not judge an utterance
	ErrTutorEvaluationFailed = errors.New("tutor evaluation failed")

	// ErrPartnerResponseFailed is returned when the scene partner did not reply
	ErrPartnerResponseFailed = errors.New("partner response failed")

	// ErrSpeechRecognitionFailed wraps every RecognitionError
	ErrSpeechRecognitionFailed = errors.New("speech recognition failed")

	// ErrAudioSynthesisFailed is returned when text-to-speech fails
	ErrAudioSynthesisFailed = errors.New("text-to-speech synthesis failed")

	// ErrNoAudio is returned when synthesis produced nothing playable
	ErrNoAudio = errors.New("no audio available")

	// ErrOutputDisabled is returned by a text-only audio output
	ErrOutputDisabled = errors.New("voice output disabled")

	// ErrPermissionDenied is returned when the microphone is not authorized
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceBusy is returned when an exclusive audio device is already held
	ErrDeviceBusy = errors.New("audio device busy")

	// ErrNoSpeech is returned when the listen window closed without any speech
	ErrNoSpeech = errors.New("no speech detected")

	// ErrTurnInFlight is returned when an utterance arrives while a turn is running
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrInputDisabled is returned when input is requested while it is disabled
	ErrInputDisabled = errors.New("input is disabled")

	// ErrEmptyUtterance is returned for blank input
	ErrEmptyUtterance = errors.New("utterance is empty")

	// ErrNoUserEntry means a correction arrived with no user entry to annotate
	ErrNoUserEntry = errors.New("no user entry to annotate")

	// ErrNilProvider is returned when a required provider is nil
	ErrNilProvider = errors.New("required provider is nil")

	// ErrConversationClosed is returned after Close
	ErrConversationClosed = errors.New("conversation closed")

	ErrSceneLevelUnavailable = errors.New("scene material unavailable")
)

type RecognitionReason string

const (
	ReasonNoSpeech         RecognitionReason = "no-speech"
	ReasonNoMatch          RecognitionReason = "no-match"
	ReasonTimeout          RecognitionReason = "timeout"
	ReasonNetwork          RecognitionReason = "network"
	ReasonBusy             RecognitionReason = "busy"
	ReasonPermissionDenied RecognitionReason = "permission-denied"
	ReasonUnknown          RecognitionReason = "unknown"
)

// RecognitionError is the coded outcome of a failed listen attempt.
type RecognitionError struct {
	Reason RecognitionReason
	Err    error
}

func (e *RecognitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech recognition failed: %s", e.Reason)
	}
	return fmt.Sprintf("speech recognition failed: %s: %v", e.Reason, e.Err)
}

func (e *RecognitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSpeechRecognitionFailed}
	}
	return []error{ErrSpeechRecognitionFailed, e.Err}
}

func recognitionReason(err error) RecognitionReason {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrNoSpeech):
		return ReasonNoSpeech
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrDeviceBusy):
		return ReasonBusy
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	default:
		return ReasonUnknown
	}
}

// failureReason renders a turn error as a short message for the learner.
func failureReason(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.As(err, &netErr):
		return "network error"
	case errors.Is(err, ErrTutorEvaluationFailed):
		return "the tutor could not check your message"
	case errors.Is(err, ErrPartnerResponseFailed):
		return "your partner could not reply"
	case errors.Is(err, ErrNoUserEntry):
		return "internal error: nothing to correct"
	default:
		return "something went wrong"
	}
}
