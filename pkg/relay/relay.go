// Package relay defines the transport abstraction between the session engine
// and the remote voice assistant endpoint.
//
// A [Transport] produces [Session] values over a full-duplex connection.
// Audio flows up as raw PCM16 chunks and comes back as decoded playback
// audio inside [Event] values, interleaved with transcripts, tool-call
// requests, and lifecycle events. The wsrelay subpackage implements the
// WebSocket wire protocol; the mock subpackage provides test doubles.
package relay

import "context"

// EventType discriminates the events a session emits.
type EventType string

const (
	// EventSessionReady confirms the remote endpoint accepted the session
	// and is ready for audio. Emitted exactly once, before any other event.
	EventSessionReady EventType = "session.ready"

	// EventAudio carries a chunk of playback audio from the assistant.
	EventAudio EventType = "audio"

	// EventTranscript carries a completed utterance transcript.
	EventTranscript EventType = "transcript"

	// EventToolCall carries an assistant-initiated tool invocation.
	EventToolCall EventType = "tool_call"

	// EventResponseDone marks the end of an assistant response turn.
	EventResponseDone EventType = "response_done"

	// EventInterrupted signals the assistant abandoned its current response,
	// typically because the wearer spoke over it.
	EventInterrupted EventType = "interrupted"

	// EventError carries a non-fatal error reported by the remote endpoint.
	// The session stays usable.
	EventError EventType = "error"

	// EventDisconnected is the terminal event: the connection is gone and no
	// further events follow. Err explains why when the close was not clean.
	EventDisconnected EventType = "disconnected"
)

// Speaker identifies who produced a transcript.
type Speaker string

const (
	SpeakerWearer    Speaker = "wearer"
	SpeakerAssistant Speaker = "assistant"
)

// ToolCall is an assistant-initiated tool invocation decoded from the wire.
type ToolCall struct {
	// ID is the remote endpoint's call identifier. Results must echo it.
	ID string

	// Name is the tool name as declared in the session configuration.
	Name string

	// Args holds the decoded argument object. Nil when the tool takes no
	// arguments.
	Args map[string]any
}

// Event is a single occurrence on a session's event stream. Type determines
// which of the payload fields are set.
type Event struct {
	Type EventType

	// Audio is set for EventAudio: raw PCM16 playback audio.
	Audio []byte

	// Speaker and Text are set for EventTranscript.
	Speaker Speaker
	Text    string

	// Tool is set for EventToolCall.
	Tool *ToolCall

	// Err is set for EventError and for an unclean EventDisconnected.
	Err error
}

// ToolDefinition declares one tool the assistant may invoke during the
// session.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig carries the per-session parameters sent during the opening
// handshake.
type SessionConfig struct {
	// Instructions is the system prompt for the assistant.
	Instructions string

	// Tools declares the tools available for this session.
	Tools []ToolDefinition

	// EquipmentID identifies the equipment unit under inspection, forwarded
	// so the assistant can scope its answers.
	EquipmentID string
}

// Session is one live full-duplex conversation. Implementations must be safe
// for concurrent sends from multiple goroutines; Events is read by a single
// consumer.
type Session interface {
	// SendAudio forwards one chunk of uplink PCM16 audio.
	SendAudio(chunk []byte) error

	// SendImage attaches a still image to the conversation, e.g. a camera
	// snapshot of the equipment taken at session start.
	SendImage(mimeType string, data []byte) error

	// SendToolResult returns the outcome of a tool call to the assistant.
	// The result is marshaled to JSON on the wire.
	SendToolResult(callID, name string, result any) error

	// Ping performs an advisory liveness probe of the connection.
	Ping(ctx context.Context) error

	// Events returns the stream of session events. The channel is closed
	// after EventDisconnected is delivered.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil while the
	// session is live or after a clean close.
	Err() error

	// Close terminates the session and releases the connection. Idempotent.
	Close() error
}

// Transport produces sessions against a remote relay endpoint.
type Transport interface {
	// Probe checks endpoint liveness without opening a session. Used as a
	// cheap gate before the full connect handshake.
	Probe(ctx context.Context) error

	// Connect opens the duplex connection and performs the session
	// handshake. The returned session emits EventSessionReady once the
	// remote side confirms.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
