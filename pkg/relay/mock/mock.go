// Package mock provides in-memory mock implementations of the
// [relay.Transport] and [relay.Session] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values. The
// Session mock owns a buffered event channel the test drives via
// [Session.Emit] and [Session.EmitDisconnect].
package mock

import (
	"context"
	"sync"

	"github.com/techvox/techvox/pkg/relay"
)

// ─── Session ──────────────────────────────────────────────────────────────────

// ToolResultCall records the arguments of a single [Session.SendToolResult]
// invocation.
type ToolResultCall struct {
	// CallID is the callID argument passed to SendToolResult.
	CallID string
	// Name is the name argument passed to SendToolResult.
	Name string
	// Result is the result argument passed to SendToolResult.
	Result any
}

// ImageCall records the arguments of a single [Session.SendImage] invocation.
type ImageCall struct {
	// MimeType is the mimeType argument passed to SendImage.
	MimeType string
	// Data is the data argument passed to SendImage.
	Data []byte
}

// Session is a mock implementation of [relay.Session].
// Set the exported *Error fields before use; inspect the recorded calls
// after. Drive the event stream with Emit and EmitDisconnect.
type Session struct {
	mu sync.Mutex

	// SendAudioError is returned by SendAudio.
	SendAudioError error

	// SendImageError is returned by SendImage.
	SendImageError error

	// SendToolResultError is returned by SendToolResult.
	SendToolResultError error

	// PingError is returned by Ping.
	PingError error

	// CloseError is returned by Close.
	CloseError error

	// ErrResult is returned by Err.
	ErrResult error

	// SendAudioCalls records the chunks passed to SendAudio.
	SendAudioCalls [][]byte

	// SendImageCalls records all SendImage invocations.
	SendImageCalls []ImageCall

	// SendToolResultCalls records all SendToolResult invocations.
	SendToolResultCalls []ToolResultCall

	// CallCountPing records how many times Ping was called.
	CallCountPing int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events     chan relay.Event
	eventsOnce sync.Once
	closedOnce sync.Once
}

var _ relay.Session = (*Session)(nil)

func (s *Session) eventsChan() chan relay.Event {
	s.eventsOnce.Do(func() {
		s.events = make(chan relay.Event, 64)
	})
	return s.events
}

// SendAudio implements [relay.Session]. Records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioError
}

// SendImage implements [relay.Session]. Records the call arguments.
func (s *Session) SendImage(mimeType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendImageCalls = append(s.SendImageCalls, ImageCall{MimeType: mimeType, Data: data})
	return s.SendImageError
}

// SendToolResult implements [relay.Session]. Records the call arguments.
func (s *Session) SendToolResult(callID, name string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendToolResultCalls = append(s.SendToolResultCalls, ToolResultCall{
		CallID: callID,
		Name:   name,
		Result: result,
	})
	return s.SendToolResultError
}

// Ping implements [relay.Session]. Returns PingError.
func (s *Session) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPing++
	return s.PingError
}

// Events implements [relay.Session].
func (s *Session) Events() <-chan relay.Event { return s.eventsChan() }

// Err implements [relay.Session]. Returns ErrResult.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrResult
}

// Close implements [relay.Session]. Returns CloseError.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Emit places ev on the event stream. Use this in tests to simulate remote
// events.
func (s *Session) Emit(ev relay.Event) {
	s.eventsChan() <- ev
}

// EmitDisconnect emits the terminal EventDisconnected with the given error,
// sets ErrResult, and closes the event stream. Safe to call once.
func (s *Session) EmitDisconnect(err error) {
	s.mu.Lock()
	s.ErrResult = err
	s.mu.Unlock()
	ch := s.eventsChan()
	s.closedOnce.Do(func() {
		ch <- relay.Event{Type: relay.EventDisconnected, Err: err}
		close(ch)
	})
}

// ─── Transport ────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Transport.Connect]
// invocation.
type ConnectCall struct {
	// Config is the session configuration passed to Connect.
	Config relay.SessionConfig
}

// ConnectOutcome is one queued result for [Transport.Connect].
type ConnectOutcome struct {
	// Session is the session returned by Connect.
	Session relay.Session
	// Err is the error returned by Connect.
	Err error
}

// Transport is a mock implementation of [relay.Transport].
// Queue per-call outcomes in ConnectQueue; when the queue is exhausted,
// Connect falls back to ConnectResult / ConnectError.
type Transport struct {
	mu sync.Mutex

	// ProbeError is returned by Probe.
	ProbeError error

	// ConnectQueue holds outcomes consumed one per Connect call, in order.
	ConnectQueue []ConnectOutcome

	// ConnectResult is returned by Connect once ConnectQueue is exhausted.
	ConnectResult relay.Session

	// ConnectError is returned by Connect once ConnectQueue is exhausted.
	ConnectError error

	// ConnectStarted, when non-nil, receives one value as each Connect call
	// begins. Lets tests observe an attempt in flight.
	ConnectStarted chan struct{}

	// ConnectGate, when non-nil, blocks each Connect call until it yields a
	// value or is closed. Lets tests interleave work with an attempt.
	ConnectGate chan struct{}

	// CallCountProbe records how many times Probe was called.
	CallCountProbe int

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

var _ relay.Transport = (*Transport)(nil)

// Probe implements [relay.Transport]. Returns ProbeError.
func (t *Transport) Probe(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountProbe++
	return t.ProbeError
}

// Connect implements [relay.Transport]. Records the call and returns the
// next queued outcome, or ConnectResult / ConnectError when the queue is
// empty.
func (t *Transport) Connect(_ context.Context, cfg relay.SessionConfig) (relay.Session, error) {
	t.mu.Lock()
	started, gate := t.ConnectStarted, t.ConnectGate
	t.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConnectCalls = append(t.ConnectCalls, ConnectCall{Config: cfg})
	if len(t.ConnectQueue) > 0 {
		next := t.ConnectQueue[0]
		t.ConnectQueue = t.ConnectQueue[1:]
		return next.Session, next.Err
	}
	return t.ConnectResult, t.ConnectError
}
