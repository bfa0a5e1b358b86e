package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/XitingXie/partner/pkg/audio"
	"github.com/XitingXie/partner/pkg/orchestrator"
)

// LokutorTTS streams raw 16-bit PCM over a persistent websocket. Synthesize
// collects the stream into a WAV clip.
type LokutorTTS struct {
	apiKey     string
	host       string
	scheme     string
	sampleRate int
	speed      float64
	steps      int

	// synthMu serializes requests on the shared connection; connMu only
	// guards the pointer so Abort can close it mid-request.
	synthMu sync.Mutex
	connMu  sync.Mutex
	conn    *websocket.Conn
}

func NewLokutorTTS(apiKey string) *LokutorTTS {
	return &LokutorTTS{
		apiKey:     apiKey,
		host:       "api.lokutor.com",
		scheme:     "wss",
		sampleRate: 44100,
		speed:      1.0,
		steps:      6,
	}
}

func (t *LokutorTTS) SetSampleRate(rate int) {
	t.sampleRate = rate
}

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + url.QueryEscape(t.apiKey)}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}
	conn.SetReadLimit(10 * 1024 * 1024)

	t.conn = conn
	return conn, nil
}

func (t *LokutorTTS) dropConn(conn *websocket.Conn, reason string) {
	t.connMu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.connMu.Unlock()
	conn.Close(websocket.StatusAbnormalClosure, reason)
}

func (t *LokutorTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	var pcm []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, orchestrator.ErrNoAudio
	}
	return audio.NewWavBuffer(pcm, t.sampleRate), nil
}

func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	t.synthMu.Lock()
	defer t.synthMu.Unlock()

	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(voice),
		"lang":    string(lang),
		"speed":   t.speed,
		"steps":   t.steps,
		"visemes": false,
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.dropConn(conn, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.dropConn(conn, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				t.dropConn(conn, "consumer stopped")
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if strings.HasPrefix(msg, "ERR:") {
				return fmt.Errorf("lokutor error: %s", strings.TrimSpace(msg[4:]))
			}
		}
	}
}

func (t *LokutorTTS) Name() string {
	return "lokutor"
}

func (t *LokutorTTS) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}

// Abort closes the connection so a blocked read returns at once. The next
// request reconnects.
func (t *LokutorTTS) Abort() error {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()
	if conn != nil {
		return conn.Close(websocket.StatusAbnormalClosure, "abort")
	}
	return nil
}
