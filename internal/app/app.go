// Package app wires configuration, providers, and the HTTP surface into a
// runnable Intervox server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/intervox-ai/intervox/internal/config"
	"github.com/intervox-ai/intervox/internal/feedback"
	"github.com/intervox-ai/intervox/internal/health"
	"github.com/intervox-ai/intervox/internal/interview"
	"github.com/intervox-ai/intervox/internal/observe"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
	"github.com/intervox-ai/intervox/pkg/provider/stt"
	"github.com/intervox-ai/intervox/pkg/provider/tts"
)

// Providers holds the pipeline providers selected by configuration. Each may
// already be wrapped in a fallback group.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// Option customizes an [App].
type Option func(*App)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithLevelVar hands the App the level var backing the process logger so hot
// config reloads can adjust verbosity.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithFeedbackSender overrides the HTTP feedback client, mainly for tests.
func WithFeedbackSender(s feedback.Sender) Option {
	return func(a *App) { a.feedbackSender = s }
}

// WithMetrics supplies pre-built metrics instead of initialising the global
// Prometheus exporter. Tests use this to avoid registering the exporter more
// than once per process.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatcher enables hot reload of the config file at path.
func WithConfigWatcher(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// App is the assembled Intervox server: provider pipeline, session manager,
// and HTTP surface.
type App struct {
	providers      *Providers
	manager        *interview.Manager
	metrics        *observe.Metrics
	metricsStop    func(context.Context) error
	logger         *slog.Logger
	levelVar       *slog.LevelVar
	feedbackSender feedback.Sender
	watchPath      string
	watcher        *config.Watcher
	httpSrv        *http.Server

	mu  sync.RWMutex
	cfg *config.Config
}

// New assembles the application. The providers must already be constructed;
// see [ComposeSTT] and friends for fallback wrapping.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm, and tts providers are required")
	}

	a := &App{
		providers: providers,
		manager:   interview.NewManager(),
		logger:    slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.metrics == nil {
		stop, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metricsStop = stop
		a.metrics = observe.DefaultMetrics()
	}

	if a.feedbackSender == nil && cfg.Feedback.URL != "" {
		var fbOpts []feedback.Option
		if cfg.Feedback.Timeout > 0 {
			fbOpts = append(fbOpts, feedback.WithTimeout(cfg.Feedback.Timeout.Std()))
		}
		a.feedbackSender = feedback.NewClient(cfg.Feedback.URL, fbOpts...)
	}

	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.applyReload)
		if err != nil {
			return nil, fmt.Errorf("app: config watcher: %w", err)
		}
		a.watcher = w
	}

	mux := http.NewServeMux()
	health.New(a.healthCheckers()).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/interview", a.handleInterview)

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// instrument records request latency for every route on the mux.
func (a *App) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				observe.Attr("method", r.Method),
				observe.Attr("path", r.URL.Path),
			),
		)
	})
}

// Run serves HTTP until ctx is cancelled or the listener fails. Call
// [App.Shutdown] afterwards to tear down sessions and exporters.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown ends all live sessions and flushes the metrics exporter.
func (a *App) Shutdown(ctx context.Context) error {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.manager.EndAll()
	if a.metricsStop != nil {
		if err := a.metricsStop(ctx); err != nil {
			return fmt.Errorf("app: metrics shutdown: %w", err)
		}
	}
	return nil
}

// Manager exposes the session manager.
func (a *App) Manager() *interview.Manager { return a.manager }

// currentConfig returns the live configuration snapshot.
func (a *App) currentConfig() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// applyReload is the watcher callback. Only settings that can take effect
// without restarting (log level, interview tuning, resilience, feedback) are
// applied; sessions already running keep the snapshot they started with.
func (a *App) applyReload(diff config.ConfigDiff, cfg *config.Config) {
	if diff.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(diff.NewLogLevel.SlogLevel())
		a.logger.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.InterviewChanged || diff.ResilienceChanged || diff.FeedbackChanged {
		a.logger.Info("configuration reloaded",
			"interview", diff.InterviewChanged,
			"resilience", diff.ResilienceChanged,
			"feedback", diff.FeedbackChanged,
		)
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// healthCheckers builds the readiness probes. Providers are constructed at
// startup, so readiness only verifies the session manager is not wedged.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "providers",
			Check: func(context.Context) error {
				if a.providers.STT == nil || a.providers.LLM == nil || a.providers.TTS == nil {
					return errors.New("provider pipeline incomplete")
				}
				return nil
			},
		},
	}
}
