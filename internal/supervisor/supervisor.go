// Package supervisor maintains the relay connection for the session engine:
// it performs the probe → connect → session-ready sequence, monitors the
// live session, and reconnects with exponential backoff when the connection
// drops without an intentional disconnect.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/techvox/techvox/internal/observe"
	"github.com/techvox/techvox/pkg/relay"
)

// Default reconnection and liveness parameters.
const (
	defaultMaxRetries        = 10
	defaultBackoffBase       = 2 * time.Second
	defaultBackoffFactor     = 1.5
	defaultMaxBackoff        = 30 * time.Second
	defaultReadyTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
)

// NoticeKind discriminates supervisor lifecycle notices.
type NoticeKind string

const (
	// NoticeReconnecting announces one reconnection attempt is starting.
	NoticeReconnecting NoticeKind = "reconnecting"

	// NoticeReconnected announces a reconnection attempt succeeded and the
	// event stream resumed.
	NoticeReconnected NoticeKind = "reconnected"

	// NoticeGaveUp announces all reconnection attempts were exhausted. The
	// supervisor is idle until the next Connect call.
	NoticeGaveUp NoticeKind = "gave_up"
)

// Notice is a supervisor lifecycle report, delivered on a channel separate
// from the relay event stream.
type Notice struct {
	Kind    NoticeKind
	Attempt int
	Err     error
}

// Option is a functional option for configuring a [Supervisor].
type Option func(*Supervisor)

// WithMaxRetries sets how many reconnection attempts are made before giving
// up. Default: 10.
func WithMaxRetries(n int) Option {
	return func(s *Supervisor) { s.maxRetries = n }
}

// WithBackoff sets the initial delay before the first reconnection attempt
// and the cap it grows toward. Each attempt waits 1.5x longer than the
// previous one. Defaults: 2s initial, 30s cap.
func WithBackoff(base, max time.Duration) Option {
	return func(s *Supervisor) {
		s.backoffBase = base
		s.maxBackoff = max
	}
}

// WithReadyTimeout sets how long a connect attempt waits for the remote
// session-ready confirmation. Default: 5s.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.readyTimeout = d }
}

// WithHeartbeatInterval sets the interval between advisory liveness pings on
// the live session. Default: 15s. Zero disables the heartbeat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.heartbeatInterval = d }
}

// WithMetrics attaches a metrics registry. Nil is allowed and disables
// recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// Supervisor owns the relay connection on behalf of the session engine.
//
// Connect establishes the session and starts a pump goroutine that forwards
// the session's events onto a stable channel; the consumer keeps reading
// the same channel across reconnects. When the session drops and the drop
// was not requested via Disconnect, the pump runs the backoff schedule,
// reporting progress on the Notices channel.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	transport relay.Transport
	cfg       relay.SessionConfig
	metrics   *observe.Metrics

	maxRetries        int
	backoffBase       time.Duration
	backoffFactor     float64
	maxBackoff        time.Duration
	readyTimeout      time.Duration
	heartbeatInterval time.Duration

	events  chan relay.Event
	notices chan Notice

	intentional atomic.Bool

	mu   sync.Mutex
	sess relay.Session
	// gen identifies the latest Connect. Each pump carries the generation it
	// was started under; a pump whose generation has been superseded exits
	// instead of reconnecting, so back-to-back Disconnect/Connect never
	// leaves two pumps feeding the events channel.
	gen uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Supervisor for the given transport and session
// configuration. The session is not connected until [Supervisor.Connect].
func New(transport relay.Transport, cfg relay.SessionConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		transport:         transport,
		cfg:               cfg,
		maxRetries:        defaultMaxRetries,
		backoffBase:       defaultBackoffBase,
		backoffFactor:     defaultBackoffFactor,
		maxBackoff:        defaultMaxBackoff,
		readyTimeout:      defaultReadyTimeout,
		heartbeatInterval: defaultHeartbeatInterval,
		events:            make(chan relay.Event, 64),
		notices:           make(chan Notice, 8),
		done:              make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Events returns the stable relay event stream. It stays open across
// reconnects and closes only when the supervisor is closed.
func (s *Supervisor) Events() <-chan relay.Event { return s.events }

// Notices returns the supervisor lifecycle stream.
func (s *Supervisor) Notices() <-chan Notice { return s.notices }

// Connect establishes the session: liveness probe, duplex connect, then
// session-ready confirmation within the ready timeout. On success the pump
// and heartbeat goroutines start and events begin flowing. On failure
// nothing is retained and the caller may call Connect again.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.intentional.Store(false)

	sess, err := s.connectOnce(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.sess = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pump(gen, sess)
	return nil
}

// connectOnce performs one full connect sequence and returns the confirmed
// session.
func (s *Supervisor) connectOnce(ctx context.Context) (relay.Session, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	err := s.transport.Probe(probeCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("supervisor: probe: %w", err)
	}

	sess, err := s.transport.Connect(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("supervisor: connect: %w", err)
	}

	if err := s.awaitReady(sess); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// awaitReady consumes the session's event stream until the session-ready
// confirmation arrives. Events that precede the confirmation are forwarded
// so nothing is lost on a well-behaved but eager remote.
func (s *Supervisor) awaitReady(sess relay.Session) error {
	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return fmt.Errorf("supervisor: session closed before ready: %w", sess.Err())
			}
			switch ev.Type {
			case relay.EventSessionReady:
				return nil
			case relay.EventDisconnected:
				return fmt.Errorf("supervisor: disconnected before ready: %w", ev.Err)
			default:
				s.forward(ev)
			}
		case <-timer.C:
			return fmt.Errorf("supervisor: no session-ready confirmation within %s", s.readyTimeout)
		case <-s.done:
			return fmt.Errorf("supervisor: closed")
		}
	}
}

// Disconnect ends the current session on purpose: the pump sees the drop,
// recognizes it as intentional, and does not reconnect. No-op without a
// live session.
func (s *Supervisor) Disconnect() {
	s.intentional.Store(true)

	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// Close disconnects and permanently shuts the supervisor down, closing both
// outward channels once the pump has drained. Idempotent.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.Disconnect()
		close(s.done)
		s.wg.Wait()
		close(s.events)
		close(s.notices)
	})
}

// Session returns the current live session, or nil while disconnected or
// reconnecting.
func (s *Supervisor) Session() relay.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// SendAudio forwards one uplink audio chunk to the live session. Chunks
// arriving while no session is live are dropped.
func (s *Supervisor) SendAudio(chunk []byte) error {
	sess := s.Session()
	if sess == nil {
		return nil
	}
	return sess.SendAudio(chunk)
}

// SendImage forwards a still image to the live session.
func (s *Supervisor) SendImage(mimeType string, data []byte) error {
	sess := s.Session()
	if sess == nil {
		return fmt.Errorf("supervisor: no live session")
	}
	return sess.SendImage(mimeType, data)
}

// SendToolResult forwards a tool outcome to the live session.
func (s *Supervisor) SendToolResult(callID, name string, result any) error {
	sess := s.Session()
	if sess == nil {
		return fmt.Errorf("supervisor: no live session")
	}
	return sess.SendToolResult(callID, name, result)
}

// stale reports whether gen no longer identifies the latest Connect.
func (s *Supervisor) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

// setSession installs sess as the live session unless a newer Connect has
// superseded gen.
func (s *Supervisor) setSession(gen uint64, sess relay.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.sess = sess
	return true
}

// clearSession drops the live session pointer if it still belongs to gen.
func (s *Supervisor) clearSession(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.sess = nil
	}
}

// forward delivers ev to the consumer unless the supervisor is closing.
func (s *Supervisor) forward(ev relay.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// notify delivers a lifecycle notice without ever blocking shutdown.
func (s *Supervisor) notify(n Notice) {
	select {
	case s.notices <- n:
	case <-s.done:
	}
}

// pump forwards session events to the stable channel. On an unintentional
// drop it runs the reconnect schedule and, on success, keeps pumping the
// replacement session. It exits when the drop was intentional, a newer
// Connect superseded this pump, reconnection is exhausted, or the supervisor
// closes.
func (s *Supervisor) pump(gen uint64, sess relay.Session) {
	defer s.wg.Done()

	heartbeatDone := make(chan struct{})
	if s.heartbeatInterval > 0 {
		go s.heartbeat(heartbeatDone)
	}
	defer close(heartbeatDone)

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				// Channel closed without a terminal event; treat as a drop.
				ev = relay.Event{Type: relay.EventDisconnected, Err: sess.Err()}
			}

			if ev.Type != relay.EventDisconnected {
				s.forward(ev)
				continue
			}

			// The dead session must not be addressed during the backoff
			// window; sends report no-session instead.
			s.clearSession(gen)

			if s.intentional.Load() || s.stale(gen) {
				return
			}

			slog.Warn("relay session dropped", "error", ev.Err)
			next := s.reconnect(gen, ev.Err)
			if next == nil {
				return
			}
			sess = next

		case <-s.done:
			return
		}
	}
}

// reconnect runs the backoff schedule: wait, attempt, grow the delay 1.5x up
// to the cap, give up once the retries run out. Returns the new session or nil.
func (s *Supervisor) reconnect(gen uint64, cause error) relay.Session {
	lastErr := cause

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		delay := s.backoffDelay(attempt)

		select {
		case <-time.After(delay):
		case <-s.done:
			return nil
		}

		if s.intentional.Load() || s.stale(gen) {
			return nil
		}

		slog.Info("attempting reconnection",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"backoff", delay,
		)
		s.notify(Notice{Kind: NoticeReconnecting, Attempt: attempt, Err: lastErr})
		s.metrics.AddReconnectAttempt(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), s.readyTimeout+s.maxBackoff)
		sess, err := s.connectOnce(ctx)
		cancel()
		if err == nil {
			// Disconnect may have been requested while the attempt was in
			// flight; an unwanted replacement session must not be announced.
			if !s.setSession(gen, sess) {
				sess.Close()
				return nil
			}
			if s.intentional.Load() {
				s.clearSession(gen)
				sess.Close()
				return nil
			}
			slog.Info("reconnection successful", "attempt", attempt)
			s.notify(Notice{Kind: NoticeReconnected, Attempt: attempt})
			return sess
		}

		lastErr = err
		slog.Warn("reconnection attempt failed", "attempt", attempt, "error", err)
	}

	slog.Error("reconnection failed after max retries",
		"max_retries", s.maxRetries,
		"error", lastErr,
	)
	s.notify(Notice{Kind: NoticeGaveUp, Attempt: s.maxRetries, Err: lastErr})
	return nil
}

// backoffDelay returns the delay before the given 1-based attempt:
// base x factor^(attempt-1), capped at the maximum.
func (s *Supervisor) backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(s.backoffBase) * math.Pow(s.backoffFactor, float64(attempt-1)))
	if d > s.maxBackoff {
		d = s.maxBackoff
	}
	return d
}

// heartbeat pings the live session at the configured interval. Failures are
// advisory: the read loop is the authority on connection death, a slow ping
// alone never tears the session down.
func (s *Supervisor) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sess := s.Session()
			if sess == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.heartbeatInterval/2)
			err := sess.Ping(ctx)
			cancel()
			if err != nil {
				slog.Warn("heartbeat ping failed", "error", err)
			}
		case <-stop:
			return
		case <-s.done:
			return
		}
	}
}
