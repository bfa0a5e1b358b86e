package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type RecognitionCallbacks struct {
	OnSpeechStart func()
	// OnPartial receives interim hypotheses. They are display-only.
	OnPartial     func(text string)
	OnEndOfSpeech func()
}

// Recognizer listens for one utterance and returns its final transcript.
type Recognizer interface {
	Recognize(ctx context.Context, lang Language, cb RecognitionCallbacks) (string, error)
	Name() string
}

type PermissionChecker interface {
	MicrophoneAuthorized() bool
}

type RecognitionState string

const (
	RecognitionIdle       RecognitionState = "IDLE"
	RecognitionListening  RecognitionState = "LISTENING"
	RecognitionFinalizing RecognitionState = "FINALIZING"
)

// Recognition resolves once a listen attempt ends, successfully or not.
type Recognition struct {
	done chan struct{}
	text string
	err  error
}

func (r *Recognition) Done() <-chan struct{} {
	return r.done
}

// Result is valid once Done is closed.
func (r *Recognition) Result() (string, error) {
	<-r.done
	return r.text, r.err
}

func (r *Recognition) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SpeechInputController turns microphone input into utterances. At most one
// recognition runs at a time and the controller is back in Idle before the
// recognition resolves, whatever the outcome.
type SpeechInputController struct {
	recognizer  Recognizer
	permissions PermissionChecker
	language    Language
	logger      Logger

	emit        func(EventType, interface{})
	onUtterance func(text string)

	mu     sync.Mutex
	state  RecognitionState
	active *Recognition
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSpeechInputController(recognizer Recognizer, permissions PermissionChecker, config Config, logger Logger) *SpeechInputController {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &SpeechInputController{
		recognizer:  recognizer,
		permissions: permissions,
		language:    config.Language,
		logger:      logger,
		emit:        func(EventType, interface{}) {},
		state:       RecognitionIdle,
	}
}

func (c *SpeechInputController) OnEvent(fn func(EventType, interface{})) {
	if fn == nil {
		fn = func(EventType, interface{}) {}
	}
	c.emit = fn
}

// OnUtterance registers the consumer of final transcripts. It runs on the
// recognition goroutine after the controller returned to Idle.
func (c *SpeechInputController) OnUtterance(fn func(text string)) {
	c.onUtterance = fn
}

func (c *SpeechInputController) Available() bool {
	return c.recognizer != nil
}

// StartListening begins a recognition. Calling it while one is running
// returns the running one.
func (c *SpeechInputController) StartListening(ctx context.Context) (*Recognition, error) {
	if c.recognizer == nil {
		return nil, ErrNilProvider
	}
	if c.permissions != nil && !c.permissions.MicrophoneAuthorized() {
		c.logger.Warn("microphone not authorized")
		c.emit(PermissionRequired, nil)
		return nil, ErrPermissionDenied
	}

	c.mu.Lock()
	if c.active != nil {
		rec := c.active
		c.mu.Unlock()
		return rec, nil
	}
	lctx, cancel := context.WithCancel(ctx)
	rec := &Recognition{done: make(chan struct{})}
	c.active = rec
	c.cancel = cancel
	c.state = RecognitionListening
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("listening", "recognizer", c.recognizer.Name(), "lang", c.language)
	c.emit(MicStateChanged, MicListening)
	go c.run(lctx, cancel, rec)
	return rec, nil
}

// StopListening aborts the running recognition, if any. It does not wait.
func (c *SpeechInputController) StopListening() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *SpeechInputController) State() RecognitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SpeechInputController) Listening() bool {
	return c.State() != RecognitionIdle
}

// Wait blocks until every recognition goroutine, and the utterance handler
// it invoked, has returned.
func (c *SpeechInputController) Wait() {
	c.wg.Wait()
}

func (c *SpeechInputController) run(ctx context.Context, cancel context.CancelFunc, rec *Recognition) {
	defer c.wg.Done()

	var (
		text string
		err  error
	)
	defer func() {
		stopped := errors.Is(ctx.Err(), context.Canceled)
		cancel()
		c.finish(rec, text, err, stopped)
	}()

	text, err = c.recognizer.Recognize(ctx, c.language, RecognitionCallbacks{
		OnSpeechStart: func() {
			c.logger.Debug("speech started")
		},
		OnPartial: func(partial string) {
			c.emit(TranscriptPartial, partial)
		},
		OnEndOfSpeech: func() {
			c.setState(RecognitionFinalizing)
		},
	})
}

func (c *SpeechInputController) finish(rec *Recognition, text string, err error, stopped bool) {
	text = strings.TrimSpace(text)

	switch {
	case err != nil && stopped:
		err = context.Canceled
	case err != nil:
		var recErr *RecognitionError
		if !errors.As(err, &recErr) {
			err = &RecognitionError{Reason: recognitionReason(err), Err: err}
		}
	case text == "":
		err = &RecognitionError{Reason: ReasonNoMatch}
	}

	c.mu.Lock()
	c.active = nil
	c.cancel = nil
	c.state = RecognitionIdle
	c.mu.Unlock()
	c.emit(MicStateChanged, MicIdle)

	if err != nil {
		text = ""
		var recErr *RecognitionError
		if errors.As(err, &recErr) {
			c.logger.Warn("speech recognition failed", "reason", recErr.Reason, "error", recErr.Err)
			c.emit(RecognitionFailed, recErr)
		} else {
			c.logger.Debug("listening stopped")
		}
	}

	rec.text, rec.err = text, err
	close(rec.done)

	if err == nil && c.onUtterance != nil {
		c.onUtterance(text)
	}
}

func (c *SpeechInputController) setState(s RecognitionState) {
	c.mu.Lock()
	if c.active != nil {
		c.state = s
	}
	c.mu.Unlock()
}
