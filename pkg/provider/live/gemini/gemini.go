// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It opens a bidirectional WebSocket to the Gemini Live endpoint and
// exchanges JSON messages according to the BidiGenerateContent protocol.
// Microphone audio is uploaded as base64 PCM16 media chunks; the model's
// speech comes back the same way inside server content parts.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/provider/live"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.Session = (*session)(nil)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	defaultVoice   = "Kore"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	eventBuffer = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the default Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithVoice sets the default prebuilt voice.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for the Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	voice   string
}

// New creates a Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		voice:   defaultVoice,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Model returns the default model name.
func (p *Provider) Model() string { return p.model }

// Connect dials the Gemini Live endpoint and sends the setup message. The
// session becomes ready when the server answers with setupComplete.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	// Inbound audio frames exceed the library's 32 KiB default.
	conn.SetReadLimit(16 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan live.Event, eventBuffer),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	voice := cfg.Voice
	if voice == "" {
		voice = p.voice
	}
	if err := sess.sendSetup(ctx, model, voice, cfg.Instructions); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan live.Event

	mu     sync.Mutex
	done   chan struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *session) sendSetup(ctx context.Context, model, voice, instructions string) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: "models/" + strings.TrimPrefix(model, "models/"),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}
	if voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	if instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: instructions}},
		}
	}
	return s.writeJSON(ctx, msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and translates them into
// events. It owns the events channel and closes it on exit.
func (s *session) receiveLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// A local Close cancels the context: end quietly.
			if s.ctx.Err() != nil {
				return
			}
			s.emit(live.Event{Kind: live.EventClosed, Err: closeError(err)})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}
		if !s.handleServerMessage(&msg) {
			return
		}
	}
}

// handleServerMessage emits the events carried by msg. It returns false when
// the session context ended while emitting.
func (s *session) handleServerMessage(msg *serverMessage) bool {
	if msg.SetupComplete != nil {
		if !s.emit(live.Event{Kind: live.EventReady}) {
			return false
		}
	}
	if msg.Error != nil {
		text := "unknown error"
		if msg.Error.Message != "" {
			text = msg.Error.Message
		}
		err := fmt.Errorf("%w: gemini: %s (code %d)", live.ErrTransport, text, msg.Error.Code)
		if !s.emit(live.Event{Kind: live.EventError, Err: err}) {
			return false
		}
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					chunk := audio.EncodedChunk{
						Data:       p.InlineData.Data,
						SampleRate: rateFromMIME(p.InlineData.MIMEType, audio.OutputSampleRate),
					}
					if !s.emit(live.Event{Kind: live.EventAudio, Audio: chunk}) {
						return false
					}
				}
				if p.Text != "" {
					if !s.emit(live.Event{Kind: live.EventText, Text: p.Text}) {
						return false
					}
				}
			}
		}
		if sc.Interrupted {
			if !s.emit(live.Event{Kind: live.EventInterrupted}) {
				return false
			}
		}
		if sc.TurnComplete {
			if !s.emit(live.Event{Kind: live.EventTurnComplete}) {
				return false
			}
		}
	}
	return true
}

// emit delivers ev unless the session is closing.
func (s *session) emit(ev live.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// keepaliveLoop sends WebSocket pings to keep the connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// closeError wraps a read failure as a transport error, keeping the close
// status when the server sent one.
func closeError(err error) error {
	if status := websocket.CloseStatus(err); status != -1 {
		return fmt.Errorf("%w: gemini: connection closed (%d)", live.ErrTransport, status)
	}
	return fmt.Errorf("%w: gemini: %v", live.ErrTransport, err)
}

// rateFromMIME extracts the rate parameter from a tag such as
// "audio/pcm;rate=24000".
func rateFromMIME(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || k != "rate" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// ── Session methods ───────────────────────────────────────────────────────────

// SendFrame uploads one encoded PCM16 frame as a realtime media chunk.
func (s *session) SendFrame(ctx context.Context, chunk audio.EncodedChunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return live.ErrSessionClosed
	}
	s.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{
				{MIMEType: chunk.MIMEType(), Data: chunk.Data},
			},
		},
	}
	if err := s.writeJSON(ctx, msg); err != nil {
		return fmt.Errorf("gemini: send frame: %w", err)
	}
	return nil
}

// Events returns the session's event channel.
func (s *session) Events() <-chan live.Event { return s.events }

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
