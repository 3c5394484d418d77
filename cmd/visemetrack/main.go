// Command visemetrack synthesises speech and derives a viseme timeline for
// avatar lip-sync. It runs one-shot subcommands or serves the same operations
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/visemetrack/internal/app"
	"github.com/MrWong99/visemetrack/internal/config"
	"github.com/MrWong99/visemetrack/internal/observe"
	"github.com/MrWong99/visemetrack/internal/resilience"
	"github.com/MrWong99/visemetrack/pkg/provider/tts"
	"github.com/MrWong99/visemetrack/pkg/provider/tts/elevenlabs"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: visemetrack [-config path] [-env file] <command> [flags]

commands:
  synth     synthesise text and write audio plus viseme timeline (default)
  align     derive a viseme timeline from a saved alignment file
  voices    list available voices
  account   show subscription quota
  serve     run the HTTP API
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("visemetrack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := fs.String("env", ".env", "dotenv file with credentials")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	name, cmdArgs := "synth", fs.Args()
	if len(cmdArgs) > 0 {
		name, cmdArgs = cmdArgs[0], cmdArgs[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "visemetrack: unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "visemetrack: %v\n", err)
		return 1
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		fmt.Fprintf(stderr, "visemetrack: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, closeLog := newLogger(cfg.Server, stderr)
	defer closeLog()
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registry:       reg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	env := &cmdEnv{
		cfg:    cfg,
		tel:    tel,
		stdout: stdout,
		stderr: stderr,
	}
	if err := cmd(ctx, env, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, context.Canceled) {
			slog.Info("interrupted")
			return 130
		}
		slog.Error(name+" failed", "err", err)
		return 1
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry, voice config.VoiceConfig) {
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{
			elevenlabs.WithDefaultSettings(tts.VoiceSettings{
				Stability:       voice.Stability,
				SimilarityBoost: voice.SimilarityBoost,
				Style:           voice.Style,
				UseSpeakerBoost: voice.UseSpeakerBoost,
				Speed:           voice.Speed,
			}),
		}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if f := entry.OptionString("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if t := entry.OptionString("transport"); t != "" {
			opts = append(opts, elevenlabs.WithTransport(elevenlabs.Transport(t)))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the TTS provider and its fallbacks named in
// cfg and returns them in an [app.Providers] struct. With more than one entry
// the providers are chained behind a [resilience.TTSFallback].
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}

	name := cfg.Providers.TTS.Name
	if name == "" {
		return ps, nil
	}
	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", name)

	fb := resilience.NewTTSFallback(primary, name, resilience.FallbackConfig{
		OnAttempt: func(provider string, err error) {
			if metrics == nil {
				return
			}
			ctx := context.Background()
			if err != nil {
				metrics.RecordProviderRequest(ctx, provider, "tts", "error")
				metrics.RecordProviderError(ctx, provider, "tts")
				return
			}
			metrics.RecordProviderRequest(ctx, provider, "tts", "ok")
		},
	})
	for i, entry := range cfg.Providers.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %d (%q): %w", i, entry.Name, err)
		}
		label := fmt.Sprintf("%s#%d", entry.Name, i+1)
		fb.AddFallback(label, p)
		slog.Info("provider created", "kind", "tts_fallback", "name", label)
	}
	ps.TTS = fb
	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. When cfg.LogFile is set, output goes
// to a size-rotated file instead of stderr. The returned func closes it.
func newLogger(cfg config.ServerConfig, stderr io.Writer) (*slog.Logger, func()) {
	var lvl slog.Level
	switch cfg.LogLevel {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	w, closeFn := stderr, func() {}
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		w, closeFn = lj, func() { _ = lj.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn
}
