// Package app wires all techvox subsystems into a running session engine.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the session loop and serves the control port,
// and Shutdown tears everything down in order.
//
// For testing, inject mock collaborators via the [Providers] struct. When a
// slot permits nil (detector, camera), the corresponding feature is
// disabled gracefully.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/techvox/techvox/internal/config"
	"github.com/techvox/techvox/internal/health"
	"github.com/techvox/techvox/internal/inspect"
	"github.com/techvox/techvox/internal/observe"
	"github.com/techvox/techvox/internal/session"
	"github.com/techvox/techvox/internal/supervisor"
	"github.com/techvox/techvox/internal/tools"
	"github.com/techvox/techvox/pkg/audio"
	"github.com/techvox/techvox/pkg/relay"
	"github.com/techvox/techvox/pkg/wake"
)

const defaultListenAddr = ":8080"

// Providers holds the external collaborators the engine runs against.
// Device and Transport are required; the rest degrade gracefully when nil.
type Providers struct {
	// Device is the duplex audio device.
	Device audio.Device

	// Transport opens relay sessions.
	Transport relay.Transport

	// Detector is the passive wake-word listener. Nil disables wake
	// triggers; sessions then start via the control surface.
	Detector wake.Detector

	// Camera supplies inspection snapshots. Nil disables them.
	Camera inspect.Camera

	// Vision overrides the HTTP vision client built from config.
	Vision inspect.Vision

	// Sink overrides the persistence sink built from config.
	Sink inspect.ReportSink
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	pipeline   *audio.Pipeline
	sup        *supervisor.Supervisor
	dispatcher *tools.Dispatcher
	machine    *session.Machine
	pool       *pgxpool.Pool
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics injects a metrics registry instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It connects the
// report store, builds the audio pipeline, dispatcher, supervisor, and
// session machine, and prepares the control-port HTTP server.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Device == nil {
		return nil, errors.New("app: an audio device is required")
	}
	if providers.Transport == nil {
		return nil, errors.New("app: a relay transport is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Persistence sink ──────────────────────────────────────────────
	sink, err := a.initSink(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Vision backend ────────────────────────────────────────────────
	vision := providers.Vision
	if vision == nil {
		var visionOpts []inspect.ClientOption
		if cfg.Vision.Timeout > 0 {
			visionOpts = append(visionOpts, inspect.WithTimeout(cfg.Vision.Timeout))
		}
		vision = inspect.NewClient(cfg.Vision.URL, cfg.Vision.Token, visionOpts...)
	}

	// ── 3. Audio pipeline ────────────────────────────────────────────────
	var audioOpts []audio.Option
	if cfg.Audio.PreBufferWindow > 0 {
		audioOpts = append(audioOpts, audio.WithPreBufferWindow(cfg.Audio.PreBufferWindow))
	}
	if cfg.Audio.PlaybackWindow > 0 {
		audioOpts = append(audioOpts, audio.WithPlaybackWindow(cfg.Audio.PlaybackWindow))
	}
	a.pipeline = audio.NewPipeline(providers.Device, audioOpts...)
	if err := a.metrics.ObserveDroppedPlayback(a.pipeline.DroppedPlaybackBytes); err != nil {
		return nil, fmt.Errorf("app: register playback metric: %w", err)
	}

	// ── 4. Tool dispatcher ───────────────────────────────────────────────
	equipment := inspect.Equipment{ID: cfg.Equipment.ID, Model: cfg.Equipment.Model}
	toolOpts := []tools.Option{tools.WithMetrics(a.metrics)}
	if providers.Camera != nil {
		toolOpts = append(toolOpts, tools.WithCamera(providers.Camera))
	}
	a.dispatcher = tools.New(vision, sink, equipment, toolOpts...)

	// ── 5. Connection supervisor ─────────────────────────────────────────
	supOpts := []supervisor.Option{supervisor.WithMetrics(a.metrics)}
	if cfg.Relay.MaxRetries > 0 {
		supOpts = append(supOpts, supervisor.WithMaxRetries(cfg.Relay.MaxRetries))
	}
	if cfg.Relay.HeartbeatInterval != 0 {
		interval := cfg.Relay.HeartbeatInterval
		if interval < 0 {
			interval = 0 // disabled
		}
		supOpts = append(supOpts, supervisor.WithHeartbeatInterval(interval))
	}
	a.sup = supervisor.New(providers.Transport, relay.SessionConfig{
		Instructions: cfg.Relay.Instructions,
		Tools:        tools.Definitions(),
		EquipmentID:  cfg.Equipment.ID,
	}, supOpts...)

	// ── 6. Session machine ───────────────────────────────────────────────
	var verifierOpts []wake.VerifierOption
	if cfg.Wake.PhoneticThreshold > 0 {
		verifierOpts = append(verifierOpts, wake.WithPhoneticThreshold(cfg.Wake.PhoneticThreshold))
	}
	if cfg.Wake.FuzzyThreshold > 0 {
		verifierOpts = append(verifierOpts, wake.WithFuzzyThreshold(cfg.Wake.FuzzyThreshold))
	}
	verifier := wake.NewVerifier(cfg.Wake.Phrase, verifierOpts...)

	coord := session.NewCoordinator(providers.Detector, a.pipeline)
	machineOpts := []session.Option{
		session.WithVerifier(verifier),
		session.WithMetrics(a.metrics),
	}
	if providers.Camera != nil {
		machineOpts = append(machineOpts, session.WithCamera(providers.Camera))
	}
	a.machine = session.New(coord, a.pipeline, a.sup, a.dispatcher, machineOpts...)

	// ── 7. Control port ──────────────────────────────────────────────────
	a.initControlPort()

	return a, nil
}

// initSink connects the PostgreSQL report store, or installs the disabled
// sink when no DSN is configured so report and order tools fail as data
// instead of crashing.
func (a *App) initSink(ctx context.Context) (inspect.ReportSink, error) {
	if a.providers.Sink != nil {
		return a.providers.Sink, nil
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; report and order tools will return errors")
		return disabledSink{}, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	store := inspect.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return store, nil
}

// initControlPort builds the HTTP server for health, status, and metrics.
func (a *App) initControlPort() {
	checkers := []health.Checker{
		{Name: "relay", Check: a.providers.Transport.Probe},
	}
	if a.pool != nil {
		checkers = append(checkers, health.Checker{Name: "store", Check: a.pool.Ping})
	}

	h := health.New(checkers, health.WithSessionStatus(func() health.SessionStatus {
		st := a.machine.Status()
		return health.SessionStatus{
			Phase:    st.Phase.String(),
			ToolName: st.ToolName,
			Error:    st.ErrMessage,
			Muted:    st.Muted,
		}
	}))

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Session controls, for dashboards and units without wake hardware.
	mux.HandleFunc("POST /session/connect", func(w http.ResponseWriter, _ *http.Request) {
		a.machine.Connect()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /session/disconnect", func(w http.ResponseWriter, _ *http.Request) {
		a.machine.Disconnect()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /session/mute", func(w http.ResponseWriter, r *http.Request) {
		muted := r.URL.Query().Get("muted") != "false"
		a.machine.SetMuted(muted)
		w.WriteHeader(http.StatusAccepted)
	})

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Machine returns the session machine, for control surfaces layered on top.
func (a *App) Machine() *session.Machine { return a.machine }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the control port and the session machine and blocks until ctx
// is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("control port listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: control port: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.machine.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-dependency order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.sup.Close()
		if err := a.pipeline.StopCapture(); err != nil {
			slog.Warn("pipeline stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// disabledSink rejects every submission. Installed when persistence is not
// configured; the dispatcher turns these errors into tool error results.
type disabledSink struct{}

var _ inspect.ReportSink = disabledSink{}

func (disabledSink) SubmitReport(context.Context, inspect.Equipment, *inspect.Result) (inspect.Receipt, error) {
	return inspect.Receipt{}, errors.New("app: persistence is not configured")
}

func (disabledSink) SubmitOrder(context.Context, inspect.Equipment, []inspect.Part) (inspect.Receipt, error) {
	return inspect.Receipt{}, errors.New("app: persistence is not configured")
}

func (disabledSink) SubmitForm(context.Context, string, map[string]any) (inspect.Receipt, error) {
	return inspect.Receipt{}, errors.New("app: persistence is not configured")
}
