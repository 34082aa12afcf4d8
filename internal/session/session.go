// Package session contains the top-level orchestration of a voice relay
// session: the microphone ownership handoff, the bounded transcript log, and
// the state machine reacting to wake triggers, relay events, and user
// actions.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/techvox/techvox/internal/inspect"
	"github.com/techvox/techvox/internal/observe"
	"github.com/techvox/techvox/internal/supervisor"
	"github.com/techvox/techvox/internal/tools"
	"github.com/techvox/techvox/pkg/audio"
	"github.com/techvox/techvox/pkg/relay"
	"github.com/techvox/techvox/pkg/wake"
)

// Phase is the machine's user-visible state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePassiveListening
	PhaseConnecting
	PhaseConnected
	PhaseRunningTool
	PhaseError
)

// String returns the phase's label for status endpoints and logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePassiveListening:
		return "passive_listening"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseRunningTool:
		return "running_tool"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the machine's observable state. ToolName is set
// only in [PhaseRunningTool], ErrMessage only in [PhaseError].
type Status struct {
	Phase      Phase
	ToolName   string
	ErrMessage string
	Muted      bool
}

// Pipeline is the slice of the audio pipeline the machine drives.
// *audio.Pipeline satisfies it.
type Pipeline interface {
	CapturePipeline
	OnFrame(fn func(audio.CaptureFrame))
	EnqueuePlayback(pcm []byte)
	FlushPlayback()
	SetMuted(muted bool)
	Muted() bool
	InputLevel() float64
	DrainPreBuffer() []byte
}

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdSetMuted
	cmdWakeTrigger
)

type command struct {
	kind    commandKind
	muted   bool
	trigger wake.Trigger
}

// Option is a functional option for configuring a [Machine].
type Option func(*Machine)

// WithCamera sets the camera used for the initial visual snapshot on entering
// the connected state. Without one the snapshot is skipped.
func WithCamera(cam inspect.Camera) Option {
	return func(m *Machine) { m.camera = cam }
}

// WithVerifier sets the phrase verifier applied to wake trigger
// transcriptions. Without one every trigger is accepted.
func WithVerifier(v *wake.Verifier) Option {
	return func(m *Machine) { m.verifier = v }
}

// WithMetrics sets the metrics registry.
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithTranscript replaces the default transcript log.
func WithTranscript(t *Transcript) Option {
	return func(m *Machine) { m.transcript = t }
}

// Machine is the session state machine. All transitions happen on the single
// goroutine running [Machine.Run]; the exported control methods post commands
// to it and return immediately.
type Machine struct {
	coord      *Coordinator
	pipeline   Pipeline
	sup        *supervisor.Supervisor
	dispatcher *tools.Dispatcher
	camera     inspect.Camera
	verifier   *wake.Verifier
	transcript *Transcript
	metrics    *observe.Metrics
	log        *slog.Logger

	cmds chan command
	done chan struct{}

	mu     sync.Mutex
	status Status
	subs   []func(Status)

	// grant is touched only on the Run goroutine.
	grant *Grant
}

// New creates a session machine over the given collaborators.
func New(coord *Coordinator, pipeline Pipeline, sup *supervisor.Supervisor, dispatcher *tools.Dispatcher, opts ...Option) *Machine {
	m := &Machine{
		coord:      coord,
		pipeline:   pipeline,
		sup:        sup,
		dispatcher: dispatcher,
		transcript: NewTranscript(0),
		log:        slog.Default().With("component", "session"),
		cmds:       make(chan command, 16),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Status returns the current observable state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.Muted = m.pipeline.Muted()
	return st
}

// Transcript returns the session's transcript log.
func (m *Machine) Transcript() *Transcript { return m.transcript }

// InputLevel returns the pipeline's current input level for display.
func (m *Machine) InputLevel() float64 { return m.pipeline.InputLevel() }

// Subscribe registers a callback invoked on every state change. Callbacks
// run on the machine's goroutine and must return quickly.
func (m *Machine) Subscribe(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Connect requests a session start, valid from idle, passive listening, or
// error.
func (m *Machine) Connect() { m.post(command{kind: cmdConnect}) }

// Disconnect requests a user-initiated teardown, valid from any state.
func (m *Machine) Disconnect() { m.post(command{kind: cmdDisconnect}) }

// SetMuted gates outbound audio. Metering and pre-buffering keep running
// while muted.
func (m *Machine) SetMuted(muted bool) { m.post(command{kind: cmdSetMuted, muted: muted}) }

func (m *Machine) post(c command) {
	select {
	case m.cmds <- c:
	case <-m.done:
	}
}

// Run drives the machine until ctx is cancelled. It starts the passive
// wake-word listener, forwards capture frames to the relay, and processes
// commands and relay events in arrival order.
func (m *Machine) Run(ctx context.Context) error {
	m.pipeline.OnFrame(func(f audio.CaptureFrame) {
		// Dropped silently when no session is up; the pre-buffer covers
		// the handshake window.
		_ = m.sup.SendAudio(f.Data)
	})

	if err := m.coord.StartPassive(m.onWakeTrigger); err != nil {
		m.log.Warn("passive listener failed to start", "error", err)
	}

	defer m.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-m.cmds:
			m.handleCommand(ctx, c)
		case ev, ok := <-m.sup.Events():
			if !ok {
				return nil
			}
			m.handleEvent(ctx, ev)
		case n, ok := <-m.sup.Notices():
			if !ok {
				return nil
			}
			m.handleNotice(ctx, n)
		}
	}
}

func (m *Machine) onWakeTrigger(t wake.Trigger) {
	m.post(command{kind: cmdWakeTrigger, trigger: t})
}

// ── Command handling ────────────────────────────────────────────────────────

func (m *Machine) handleCommand(ctx context.Context, c command) {
	switch c.kind {
	case cmdConnect:
		m.connect(ctx)
	case cmdDisconnect:
		m.disconnect()
	case cmdSetMuted:
		m.pipeline.SetMuted(c.muted)
	case cmdWakeTrigger:
		m.wakeTrigger(ctx, c.trigger)
	}
}

func (m *Machine) wakeTrigger(ctx context.Context, t wake.Trigger) {
	if m.verifier != nil && t.Text != "" {
		score, ok := m.verifier.Verify(t.Text)
		if !ok {
			m.metrics.RecordWakeTrigger(ctx, "rejected")
			m.log.Debug("wake trigger rejected", "text", t.Text, "score", score)
			return
		}
	}
	m.metrics.RecordWakeTrigger(ctx, "accepted")

	switch m.Status().Phase {
	case PhaseIdle:
		m.setStatus(ctx, Status{Phase: PhasePassiveListening})
	case PhasePassiveListening:
		m.connect(ctx)
	default:
		// Already in or past connecting; a stray trigger changes nothing.
	}
}

// connect runs the full session bring-up: acquire the microphone, open the
// relay, drain the pre-buffer. Valid from idle, passive listening, and error.
func (m *Machine) connect(ctx context.Context) {
	switch m.Status().Phase {
	case PhaseIdle, PhasePassiveListening, PhaseError:
	default:
		return
	}

	// A retry from the error state may leave a half-dead session behind;
	// drop it before opening the next one.
	m.sup.Disconnect()

	// A fresh conversation: whatever the previous session held is stale.
	m.transcript.Clear()
	m.dispatcher.Reset()

	m.setStatus(ctx, Status{Phase: PhaseConnecting})

	grant, err := m.coord.Acquire()
	if err != nil {
		m.fail(ctx, "microphone unavailable: "+err.Error())
		return
	}
	m.grant = grant

	if err := m.sup.Connect(ctx); err != nil {
		m.releaseGrant()
		m.fail(ctx, "connection failed: "+err.Error())
		return
	}

	m.enterConnected(ctx)
}

func (m *Machine) disconnect() {
	m.sup.Disconnect()
	m.releaseGrant()
	m.transcript.Clear()
	m.dispatcher.Reset()
	m.pipeline.FlushPlayback()
	if m.Status().Phase == PhaseConnected || m.Status().Phase == PhaseRunningTool {
		m.metrics.SessionEnded(context.Background())
	}
	m.setStatus(context.Background(), Status{Phase: PhaseIdle})
}

// ── Relay event handling ────────────────────────────────────────────────────

func (m *Machine) handleEvent(ctx context.Context, ev relay.Event) {
	m.metrics.AddRelayEvent(ctx, string(ev.Type))

	switch ev.Type {
	case relay.EventAudio:
		m.pipeline.EnqueuePlayback(ev.Audio)
	case relay.EventInterrupted:
		// Barge-in: stale remote audio stops at the next render period.
		m.pipeline.FlushPlayback()
	case relay.EventTranscript:
		role := RoleAssistant
		if ev.Speaker == relay.SpeakerWearer {
			role = RoleUser
		}
		m.transcript.Append(role, ev.Text)
	case relay.EventToolCall:
		m.runTool(ctx, ev.Tool)
	case relay.EventError:
		m.toError(ctx, errMessage(ev.Err))
	case relay.EventDisconnected:
		m.toError(ctx, errMessage(ev.Err))
	case relay.EventSessionReady, relay.EventResponseDone:
		// No transition; ready is consumed by the supervisor during
		// bring-up and done only closes a response turn.
	}
}

func (m *Machine) runTool(ctx context.Context, call *relay.ToolCall) {
	if call == nil {
		return
	}
	if m.Status().Phase != PhaseConnected {
		m.log.Warn("tool call ignored outside connected state", "tool", call.Name)
		return
	}

	m.setStatus(ctx, Status{Phase: PhaseRunningTool, ToolName: call.Name})
	result := m.dispatcher.Dispatch(ctx, tools.Call{
		ID:   call.ID,
		Name: call.Name,
		Args: tools.FromArgs(call.Args),
	})
	if err := m.sup.SendToolResult(call.ID, call.Name, result); err != nil {
		m.log.Warn("tool result send failed", "tool", call.Name, "error", err)
	}
	m.setStatus(ctx, Status{Phase: PhaseConnected})
}

func (m *Machine) handleNotice(ctx context.Context, n supervisor.Notice) {
	// A notice can describe a session this machine has already torn down,
	// when the user disconnects while the supervisor is mid-reconnect. Act
	// only while a session is live or being re-established.
	ph := m.Status().Phase
	switch n.Kind {
	case supervisor.NoticeReconnecting:
		switch ph {
		case PhaseConnected, PhaseRunningTool:
			m.metrics.SessionEnded(ctx)
		case PhaseConnecting:
		default:
			return
		}
		m.setStatus(ctx, Status{Phase: PhaseConnecting})
	case supervisor.NoticeReconnected:
		if ph != PhaseConnecting {
			return
		}
		m.enterConnected(ctx)
	case supervisor.NoticeGaveUp:
		if ph != PhaseConnecting && ph != PhaseConnected && ph != PhaseRunningTool {
			return
		}
		m.toError(ctx, "connection lost: "+errMessage(n.Err))
	}
}

// ── Transitions ─────────────────────────────────────────────────────────────

// enterConnected performs the connected-entry side effects: a best-effort
// visual snapshot for context and the pre-buffered audio spoken during the
// handshake.
func (m *Machine) enterConnected(ctx context.Context) {
	if m.camera != nil {
		if photo, err := m.camera.CapturePhoto(ctx); err != nil {
			m.log.Debug("context snapshot skipped", "error", err)
		} else if err := m.sup.SendImage("image/jpeg", photo); err != nil {
			m.log.Debug("context snapshot send failed", "error", err)
		}
	}

	if buffered := m.pipeline.DrainPreBuffer(); len(buffered) > 0 {
		if err := m.sup.SendAudio(buffered); err != nil {
			m.log.Warn("pre-buffer send failed", "error", err)
		}
	}

	m.metrics.SessionStarted(ctx)
	m.setStatus(ctx, Status{Phase: PhaseConnected})
}

// fail records a bring-up failure. The supervisor never got a session, so no
// session-ended accounting is needed.
func (m *Machine) fail(ctx context.Context, msg string) {
	m.log.Error("session start failed", "error", msg)
	m.setStatus(ctx, Status{Phase: PhaseError, ErrMessage: msg})
}

// toError tears a live session down into the error state. Error is
// re-enterable: a later connect retries from here.
func (m *Machine) toError(ctx context.Context, msg string) {
	if m.Status().Phase == PhaseConnected || m.Status().Phase == PhaseRunningTool {
		m.metrics.SessionEnded(ctx)
	}
	m.releaseGrant()
	m.pipeline.FlushPlayback()
	m.setStatus(ctx, Status{Phase: PhaseError, ErrMessage: msg})
}

func (m *Machine) releaseGrant() {
	if m.grant == nil {
		return
	}
	if err := m.grant.Release(); err != nil {
		m.log.Warn("microphone release failed", "error", err)
	}
	m.grant = nil
}

func (m *Machine) teardown() {
	m.sup.Disconnect()
	m.releaseGrant()
	if err := m.coord.StopPassive(); err != nil {
		m.log.Warn("passive listener stop failed", "error", err)
	}
	close(m.done)
}

func (m *Machine) setStatus(ctx context.Context, st Status) {
	m.mu.Lock()
	prev := m.status
	m.status = st
	subs := make([]func(Status), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if prev.Phase != st.Phase {
		m.metrics.RecordTransition(ctx, prev.Phase.String(), st.Phase.String())
		m.log.Info("state changed", "from", prev.Phase, "to", st.Phase,
			"tool", st.ToolName, "error", st.ErrMessage)
	}
	for _, fn := range subs {
		fn(st)
	}
}

func errMessage(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
