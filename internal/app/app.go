// Package app wires the visemetrack subsystems into a running application.
//
// New loads the pronunciation dictionary and assembles the lip-sync
// pipeline. The CLI calls the App methods directly; Run serves them over
// HTTP until Shutdown.
//
// For testing, inject test doubles via functional options (WithDictionary,
// WithMetrics, ...). When an option is not provided, New builds the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/visemetrack/internal/config"
	"github.com/MrWong99/visemetrack/internal/lipsync"
	"github.com/MrWong99/visemetrack/internal/observe"
	"github.com/MrWong99/visemetrack/internal/pronounce"
	"github.com/MrWong99/visemetrack/pkg/provider/tts"
	"github.com/MrWong99/visemetrack/pkg/types"
)

// ErrNoProvider is returned by operations that need a TTS backend when none
// is configured.
var ErrNoProvider = errors.New("app: no tts provider configured")

// ErrProviderAlignment is returned by [App.Synthesize] when the provider's
// timing data fails validation. It also wraps the underlying
// [lipsync.ErrMalformedInput].
var ErrProviderAlignment = errors.New("app: provider returned unusable alignment")

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	TTS tts.Provider
}

// Speech is the outcome of [App.Synthesize].
type Speech struct {
	// Audio holds the encoded audio exactly as the provider returned it.
	Audio []byte

	// Format is the provider output format, e.g. "mp3_44100_128".
	Format string

	// Ext is the file extension matching Format, without the dot.
	Ext string

	// Alignment is the timing the viseme timeline was derived from.
	Alignment types.CharacterAlignment

	// Lipsync is the pipeline output for Alignment.
	Lipsync *lipsync.Result
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	dict     pronounce.Dictionary
	pipeline *lipsync.Pipeline
	metrics  *observe.Metrics

	// metricsHandler serves /metrics when set.
	metricsHandler http.Handler
	version        string

	server *http.Server

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDictionary injects a pronunciation dictionary instead of loading one
// from config.
func WithDictionary(d pronounce.Dictionary) Option {
	return func(a *App) { a.dict = d }
}

// WithMetrics records pipeline, provider and HTTP metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithVersion sets the version reported by the health endpoints.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. providers comes from main.go (populated via
// the config registry) and may be nil when only offline alignment is needed.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initDictionary(); err != nil {
		return nil, fmt.Errorf("app: init dictionary: %w", err)
	}
	a.initPipeline()
	return a, nil
}

func (a *App) initDictionary() error {
	if a.dict != nil {
		return nil
	}
	if a.cfg.Dictionary.Path == "" {
		a.dict = pronounce.Builtin()
		slog.Debug("using built-in pronunciation dictionary", "words", len(a.dict.Words()))
		return nil
	}
	start := time.Now()
	m, err := pronounce.LoadFile(a.cfg.Dictionary.Path)
	if err != nil {
		return err
	}
	a.dict = m
	slog.Info("pronunciation dictionary loaded",
		"path", a.cfg.Dictionary.Path,
		"words", m.Len(),
		"duration", time.Since(start),
	)
	return nil
}

func (a *App) initPipeline() {
	var matcher pronounce.Matcher
	switch a.cfg.Dictionary.Index {
	case config.IndexBKTree:
		matcher = pronounce.NewBKTree(a.dict)
	default:
		matcher = pronounce.NewLinear(a.dict)
	}

	resolver := lipsync.NewResolver(a.dict,
		lipsync.WithMatcher(matcher),
		lipsync.WithFuzzyThreshold(a.cfg.Lipsync.MinFuzzyDistance, a.cfg.Lipsync.FuzzyRatio),
		lipsync.WithSilencePhoneme(a.cfg.Lipsync.SilencePhoneme),
	)

	var popts []lipsync.PipelineOption
	if a.metrics != nil {
		popts = append(popts, lipsync.WithMetrics(a.metrics))
	}
	a.pipeline = lipsync.NewPipeline(resolver, popts...)
}

// ─── Operations ──────────────────────────────────────────────────────────────

// Synthesize speaks text with voiceID (the configured default when empty)
// and derives the viseme timeline from the returned alignment.
func (a *App) Synthesize(ctx context.Context, text, voiceID string) (*Speech, error) {
	if err := lipsync.ValidateText(text); err != nil {
		return nil, err
	}
	if a.providers.TTS == nil {
		return nil, ErrNoProvider
	}
	if voiceID == "" {
		voiceID = a.cfg.Voice.VoiceID
	}
	if voiceID == "" {
		return nil, fmt.Errorf("app: no voice id given and none configured (set voice.voice_id or %s)", config.EnvVoiceID)
	}

	ctx, span := observe.StartSpan(ctx, "app.Synthesize")
	defer span.End()

	settings := a.voiceSettings()
	start := time.Now()
	s, err := a.providers.TTS.Synthesize(ctx, tts.Request{
		Text:     text,
		VoiceID:  voiceID,
		Settings: &settings,
	})
	if a.metrics != nil {
		a.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		observe.FailSpan(span, err)
		return nil, fmt.Errorf("app: synthesize: %w", err)
	}
	observe.Logger(ctx).Info("speech synthesized",
		"voice_id", voiceID,
		"format", s.Format,
		"bytes", len(s.Audio),
		"duration", time.Since(start),
	)

	alignment := s.TimingAlignment()
	res, err := a.pipeline.Run(ctx, alignment)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, fmt.Errorf("%w: %w", ErrProviderAlignment, err)
	}
	return &Speech{
		Audio:     s.Audio,
		Format:    s.Format,
		Ext:       s.FileExtension(),
		Alignment: alignment,
		Lipsync:   res,
	}, nil
}

// Align runs the lip-sync pipeline on a previously obtained alignment
// without contacting any provider.
func (a *App) Align(ctx context.Context, alignment types.CharacterAlignment) (*lipsync.Result, error) {
	return a.pipeline.Run(ctx, alignment)
}

// ListVoices returns the voices available to the configured provider.
func (a *App) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if a.providers.TTS == nil {
		return nil, ErrNoProvider
	}
	return a.providers.TTS.ListVoices(ctx)
}

// Account returns the provider account and subscription details.
func (a *App) Account(ctx context.Context) (*tts.Account, error) {
	if a.providers.TTS == nil {
		return nil, ErrNoProvider
	}
	return a.providers.TTS.Account(ctx)
}

// Dictionary returns the pronunciation dictionary in use.
func (a *App) Dictionary() pronounce.Dictionary {
	return a.dict
}

func (a *App) voiceSettings() tts.VoiceSettings {
	v := a.cfg.Voice
	return tts.VoiceSettings{
		Stability:       v.Stability,
		SimilarityBoost: v.SimilarityBoost,
		Style:           v.Style,
		UseSpeakerBoost: v.UseSpeakerBoost,
		Speed:           v.Speed,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on cfg.Server.ListenAddr and blocks until ctx is
// cancelled or the listener fails. On cancellation Run returns ctx.Err();
// call Shutdown afterwards to drain in-flight requests.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.closers = append(a.closers, a.server.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
