// Package wsrelay implements the relay.Transport interface over WebSocket.
//
// It dials the relay endpoint, performs the session.start handshake, and
// exchanges JSON events. Audio travels as base64-encoded PCM16 chunks in
// both directions; tool calls arrive as JSON-encoded argument objects and
// results are returned the same way.
package wsrelay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/techvox/techvox/pkg/relay"
)

// Compile-time assertions that Transport and session satisfy the relay
// interfaces.
var _ relay.Transport = (*Transport)(nil)
var _ relay.Session = (*session)(nil)

const defaultProbePath = "/healthz"

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithHTTPClient sets the HTTP client used for the liveness probe and the
// WebSocket dial. Primarily used in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.httpClient = c }
}

// WithProbePath overrides the liveness probe path. Default: /healthz.
func WithProbePath(path string) Option {
	return func(t *Transport) { t.probePath = path }
}

// ── Transport ──────────────────────────────────────────────────────────────────

// Transport implements relay.Transport against a WebSocket relay endpoint.
type Transport struct {
	endpoint   string // ws:// or wss:// URL
	token      string
	probePath  string
	httpClient *http.Client
}

// New creates a Transport for the given WebSocket endpoint and bearer token.
func New(endpoint, token string, opts ...Option) *Transport {
	t := &Transport{
		endpoint:   endpoint,
		token:      token,
		probePath:  defaultProbePath,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Probe issues a GET against the endpoint's health path over plain HTTP.
// Any 2xx status counts as alive.
func (t *Transport) Probe(ctx context.Context) error {
	probeURL, err := t.probeURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("wsrelay: probe request: %w", err)
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wsrelay: probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("wsrelay: probe: endpoint returned %s", resp.Status)
	}
	return nil
}

// probeURL derives the HTTP health URL from the WebSocket endpoint.
func (t *Transport) probeURL() (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("wsrelay: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = t.probePath
	u.RawQuery = ""
	return u.String(), nil
}

// Connect dials the endpoint and sends the session.start handshake. The
// returned session emits relay.EventSessionReady once the remote side
// confirms; waiting for that confirmation is the caller's responsibility.
func (t *Transport) Connect(ctx context.Context, cfg relay.SessionConfig) (relay.Session, error) {
	conn, _, err := websocket.Dial(ctx, t.endpoint, &websocket.DialOptions{
		HTTPClient: t.httpClient,
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + t.token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wsrelay: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan relay.Event, 64),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionStart(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session start failed")
		return nil, fmt.Errorf("wsrelay: session start: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionStartMessage struct {
	Type    string        `json:"type"`
	ID      string        `json:"id"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Instructions      string     `json:"instructions,omitempty"`
	Tools             []wireTool `json:"tools,omitempty"`
	EquipmentID       string     `json:"equipment_id,omitempty"`
	InputAudioFormat  string     `json:"input_audio_format"`
	OutputAudioFormat string     `json:"output_audio_format"`
}

type wireTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type appendImageMessage struct {
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded image bytes
}

type toolResultMessage struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"` // JSON-encoded result
}

// serverErrorDetail is the nested error object in an error event:
// {"type":"error","error":{"code":"...","message":"..."}}.
type serverErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta
	Delta string `json:"delta,omitempty"`

	// transcript.done
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`

	// tool.call
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan relay.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionStart sends the opening handshake declaring instructions,
// tools, and audio formats.
func (s *session) sendSessionStart(cfg relay.SessionConfig) error {
	params := sessionParams{
		Instructions:      cfg.Instructions,
		EquipmentID:       cfg.EquipmentID,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if len(cfg.Tools) > 0 {
		params.Tools = toWireTools(cfg.Tools)
	}
	return s.writeJSON(sessionStartMessage{
		Type:    "session.start",
		ID:      uuid.NewString(),
		Session: params,
	})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsrelay: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the events channel: it emits the terminal EventDisconnected and closes the
// channel when it exits.
func (s *session) receiveLoop() {
	defer func() {
		s.emit(relay.Event{Type: relay.EventDisconnected, Err: s.Err()})
		s.closeOnce.Do(func() { close(s.events) })
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.ready":
		s.emit(relay.Event{Type: relay.EventSessionReady})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		s.emit(relay.Event{Type: relay.EventAudio, Audio: audioData})

	case "transcript.done":
		if evt.Text == "" {
			return
		}
		speaker := relay.SpeakerWearer
		if evt.Speaker == "assistant" {
			speaker = relay.SpeakerAssistant
		}
		s.emit(relay.Event{Type: relay.EventTranscript, Speaker: speaker, Text: evt.Text})

	case "tool.call":
		var args map[string]any
		if evt.Arguments != "" {
			if err := json.Unmarshal([]byte(evt.Arguments), &args); err != nil {
				s.emit(relay.Event{
					Type: relay.EventError,
					Err:  fmt.Errorf("wsrelay: tool call %s: decode arguments: %w", evt.Name, err),
				})
				return
			}
		}
		s.emit(relay.Event{Type: relay.EventToolCall, Tool: &relay.ToolCall{
			ID:   evt.CallID,
			Name: evt.Name,
			Args: args,
		}})

	case "response.done":
		s.emit(relay.Event{Type: relay.EventResponseDone})

	case "response.interrupted":
		s.emit(relay.Event{Type: relay.EventInterrupted})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(relay.Event{Type: relay.EventError, Err: fmt.Errorf("wsrelay: %s", msg)})
	}
}

// emit delivers ev to the consumer unless the session context is gone.
func (s *session) emit(ev relay.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// toWireTools converts relay tool definitions to the wire format.
func toWireTools(tools []relay.ToolDefinition) []wireTool {
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		out[i] = wireTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return out
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendAudio delivers a raw PCM16 audio chunk to the assistant.
func (s *session) SendAudio(chunk []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

// SendImage attaches a still image to the conversation.
func (s *session) SendImage(mimeType string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(appendImageMessage{
		Type:     "input_image.append",
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	})
}

// SendToolResult returns a tool outcome to the assistant and triggers the
// next response turn.
func (s *session) SendToolResult(callID, name string, result any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("wsrelay: marshal tool result: %w", err)
	}

	if err := s.writeJSON(toolResultMessage{
		Type:   "tool.result",
		CallID: callID,
		Name:   name,
		Output: string(output),
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// Ping performs a WebSocket-level ping round trip.
func (s *session) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.conn.Ping(ctx)
}

// Events returns the channel on which session events arrive.
func (s *session) Events() <-chan relay.Event { return s.events }

// Err returns the first non-nil error that terminated the session.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases the connection. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (s *session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wsrelay: session closed")
	}
	return nil
}
