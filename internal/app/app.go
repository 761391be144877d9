// Package app wires the client's subsystems together: focus manager,
// directive sequencer, context manager, speech recognizer, and transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/04116/avs-device-sdk/internal/config"
	"github.com/04116/avs-device-sdk/internal/contextmgr"
	"github.com/04116/avs-device-sdk/internal/directive"
	"github.com/04116/avs-device-sdk/internal/focus"
	"github.com/04116/avs-device-sdk/internal/health"
	"github.com/04116/avs-device-sdk/internal/recognizer"
	"github.com/04116/avs-device-sdk/internal/transport"
	"github.com/04116/avs-device-sdk/pkg/audio"
	"github.com/04116/avs-device-sdk/pkg/audio/sds"
	"github.com/04116/avs-device-sdk/pkg/avs"
)

// defaultStreamCapacitySamples sizes the capture ring when the config leaves
// it unset: ten seconds at 16 kHz.
const defaultStreamCapacitySamples = 160000

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEventSender injects an event sender instead of dialing the configured
// endpoint.
func WithEventSender(s avs.EventSender) Option {
	return func(a *App) { a.sender = s }
}

// WithLevelVar hands the App the log level it should adjust on config
// reloads.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// App owns all subsystem lifetimes and orchestrates the dialog client.
type App struct {
	cfg   *config.Config
	log   *slog.Logger
	level *slog.LevelVar

	focus      *focus.Manager
	seq        *directive.Sequencer
	contextMgr *contextmgr.Manager
	proc       *recognizer.Processor
	buf        *sds.Buffer
	mic        audio.Provider

	sender     avs.EventSender
	client     *transport.Client // nil when the sender was injected or no endpoint is set
	exceptions *exceptionSender

	mu          sync.Mutex
	metricsAddr string

	stopOnce sync.Once
}

// New creates an App by wiring all subsystems together. ctx bounds the
// transport dial; the App itself lives until Shutdown.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	a := &App{cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Focus channels ────────────────────────────────────────────────
	channels := make([]focus.ChannelConfig, 0, len(cfg.Focus.Channels))
	for _, c := range cfg.Focus.Channels {
		channels = append(channels, focus.ChannelConfig{Name: c.Name, Priority: c.Priority})
	}
	fm, err := focus.NewManager(channels)
	if err != nil {
		return nil, fmt.Errorf("app: init focus: %w", err)
	}
	a.focus = fm

	// ── 2. Context manager + sequencer ───────────────────────────────────
	a.contextMgr = contextmgr.New(a.log)
	a.exceptions = &exceptionSender{log: a.log}
	seq, err := directive.NewSequencer(a.exceptions)
	if err != nil {
		fm.Close()
		return nil, fmt.Errorf("app: init sequencer: %w", err)
	}
	a.seq = seq

	// ── 3. Capture buffer + microphone ───────────────────────────────────
	capacity := cfg.Capture.StreamCapacitySamples
	if capacity == 0 {
		capacity = defaultStreamCapacitySamples
	}
	buf, err := sds.New(sds.Config{
		CapacitySamples: capacity,
		BytesPerSample:  audio.LPCM16kMono.BytesPerSample(),
	})
	if err != nil {
		fm.Close()
		return nil, fmt.Errorf("app: init capture buffer: %w", err)
	}
	a.buf = buf

	profile := audio.Profile(cfg.Recognizer.Profile)
	if profile == "" {
		profile = audio.ProfileNearField
	}
	a.mic = audio.Provider{
		Stream:          buf,
		Format:          audio.LPCM16kMono,
		Profile:         profile,
		AlwaysReadable:  cfg.Capture.AlwaysReadable,
		CanOverride:     cfg.Capture.CanOverride,
		CanBeOverridden: cfg.Capture.CanBeOverridden,
	}

	// ── 4. Event sender ──────────────────────────────────────────────────
	if a.sender == nil {
		if cfg.Endpoint.URL != "" {
			client, err := transport.Dial(ctx, transport.Config{
				URL:    cfg.Endpoint.URL,
				Token:  cfg.Endpoint.Token,
				Sink:   seq,
				Logger: a.log,
			})
			if err != nil {
				fm.Close()
				return nil, fmt.Errorf("app: connect transport: %w", err)
			}
			a.client = client
			a.sender = client
		} else {
			a.sender = discardSender{log: a.log}
		}
	}
	a.exceptions.bind(a.sender)

	// ── 5. Recognizer ────────────────────────────────────────────────────
	proc, err := recognizer.New(recognizer.Config{
		Focus:               fm,
		Channel:             cfg.Recognizer.Channel,
		Context:             a.contextMgr,
		Sender:              a.sender,
		Dialog:              seq,
		DefaultProvider:     a.mic,
		ExpectSpeechTimeout: time.Duration(cfg.Recognizer.ExpectSpeechTimeoutMS) * time.Millisecond,
		Wakeword:            cfg.Recognizer.Wakeword,
		Logger:              a.log,
	})
	if err != nil {
		a.closeTransport()
		fm.Close()
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}
	a.proc = proc

	if err := proc.RegisterDirectives(seq); err != nil {
		proc.Close()
		a.closeTransport()
		fm.Close()
		return nil, fmt.Errorf("app: register directives: %w", err)
	}

	return a, nil
}

// Processor exposes the speech recognizer for device integrations (buttons,
// wakeword engines).
func (a *App) Processor() *recognizer.Processor { return a.proc }

// Microphone returns the default capture provider backed by the shared
// buffer.
func (a *App) Microphone() audio.Provider { return a.mic }

// CaptureWriter is where device audio input code writes raw PCM samples.
func (a *App) CaptureWriter() io.WriteCloser { return a.buf }

// Focus exposes the focus manager so other activities (media playback,
// alerts) can acquire their channels.
func (a *App) Focus() *focus.Manager { return a.focus }

// OnConfigChange applies the hot-reloadable parts of a config edit. Wire it
// to a [config.Watcher].
func (a *App) OnConfigChange(old, new *config.Config) {
	d := config.Compare(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.WakewordChanged {
		a.proc.SetWakeword(d.NewWakeword)
		a.log.Info("wakeword changed", "wakeword", d.NewWakeword)
	}
}

// MetricsAddr returns the actual diagnostics listen address once Run has
// bound it, or "" when the metrics server is disabled or not yet started.
func (a *App) MetricsAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metricsAddr
}

// Run serves the diagnostics endpoints until ctx is cancelled. The dialog
// subsystems themselves are event-driven and need no loop here.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.MetricsAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.Server.MetricsAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.MetricsAddr, err)
		}
		a.mu.Lock()
		a.metricsAddr = ln.Addr().String()
		a.mu.Unlock()

		mux := http.NewServeMux()
		a.healthHandler().Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())
		srv := &http.Server{Handler: mux}

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})

		a.log.Info("diagnostics listening", "addr", a.metricsAddr)
	}

	a.log.Info("client running",
		"channels", len(a.cfg.Focus.Channels),
		"dialog_channel", a.cfg.Recognizer.Channel,
		"endpoint", a.cfg.Endpoint.URL,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// healthHandler builds the liveness/readiness handler for the diagnostics
// listener.
func (a *App) healthHandler() *health.Handler {
	service := a.cfg.Server.ServiceName
	if service == "" {
		service = "avsclient"
	}
	return health.New(service,
		health.Checker{Name: "event_sender", Check: func(context.Context) error {
			if a.sender == nil {
				return errors.New("no event sender configured")
			}
			return nil
		}},
		health.Checker{Name: "recognizer", Check: func(context.Context) error {
			if a.proc == nil {
				return errors.New("recognizer not started")
			}
			return nil
		}},
	)
}

// Shutdown tears the subsystems down in dependency order. Safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		done := make(chan struct{})
		go func() {
			defer close(done)
			a.proc.Close()
			a.closeTransport()
			a.focus.Close()
			_ = a.buf.Close()
		}()

		select {
		case <-done:
			a.log.Info("shutdown complete")
		case <-ctx.Done():
			a.log.Warn("shutdown deadline exceeded")
			err = ctx.Err()
		}
	})
	return err
}

func (a *App) closeTransport() {
	if a.client != nil {
		_ = a.client.Close()
	}
}

// discardSender is the event sender used when no endpoint is configured. It
// drains attachments so capture pumps do not stall.
type discardSender struct {
	log *slog.Logger
}

func (d discardSender) SendEvent(_ context.Context, req *avs.EventRequest) error {
	if req.Attachment != nil {
		go func() {
			_, _ = io.Copy(io.Discard, req.Attachment)
			_ = req.Attachment.Close()
		}()
	}
	d.log.Debug("event discarded; no endpoint configured", "bytes", len(req.Body))
	return nil
}
