package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/visemetrack/internal/app"
	"github.com/MrWong99/visemetrack/internal/artifact"
	"github.com/MrWong99/visemetrack/internal/config"
	"github.com/MrWong99/visemetrack/internal/observe"
)

// alignmentSuffix names the alignment file written by synth -save-alignment.
const alignmentSuffix = "_alignment.json"

// cmdEnv is the state shared by every subcommand.
type cmdEnv struct {
	cfg    *config.Config
	tel    *observe.Telemetry
	stdout io.Writer
	stderr io.Writer
}

// newApp builds the application. With withTTS the configured providers are
// created and a failure is returned; otherwise the app runs offline.
func (e *cmdEnv) newApp(withTTS bool) (*app.App, error) {
	providers := &app.Providers{}
	if withTTS {
		reg := config.NewRegistry()
		registerBuiltinProviders(reg, e.cfg.Voice)
		var err error
		if providers, err = buildProviders(e.cfg, reg, e.tel.Metrics); err != nil {
			return nil, err
		}
	}
	return app.New(e.cfg, providers,
		app.WithMetrics(e.tel.Metrics),
		app.WithMetricsHandler(e.tel.Handler),
		app.WithVersion(version),
	)
}

func (e *cmdEnv) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

type command func(ctx context.Context, env *cmdEnv, args []string) error

var commands = map[string]command{
	"synth":   runSynth,
	"align":   runAlign,
	"voices":  runVoices,
	"account": runAccount,
	"serve":   runServe,
}

// ── synth ─────────────────────────────────────────────────────────────────────

func runSynth(ctx context.Context, env *cmdEnv, args []string) error {
	fs := env.flagSet("synth")
	in := fs.String("in", env.cfg.Input.Path, "text file to speak")
	text := fs.String("text", "", "text to speak instead of reading -in")
	out := fs.String("o", env.cfg.Output.Path, "output directory and base filename (e.g. ./output/myfile)")
	voice := fs.String("voice", "", "voice id (default: voice.voice_id)")
	saveAlignment := fs.Bool("save-alignment", false, "also write <base>"+alignmentSuffix)
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg := *text
	if msg == "" {
		data, err := os.ReadFile(*in)
		if err != nil {
			return fmt.Errorf("read input text %s: %w", *in, err)
		}
		msg = string(data)
	}

	a, err := env.newApp(true)
	if err != nil {
		return err
	}
	start := time.Now()
	speech, err := a.Synthesize(ctx, msg, *voice)
	if err != nil {
		return err
	}

	paths, err := artifact.Write(ctx, *out, speech.Audio, speech.Ext, speech.Lipsync.Events)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "Audio saved to: %s\n", paths.Audio)
	fmt.Fprintf(env.stdout, "Viseme data saved to: %s\n", paths.Visemes)

	if *saveAlignment {
		path := *out + alignmentSuffix
		if err := artifact.WriteAlignment(path, speech.Alignment); err != nil {
			return err
		}
		fmt.Fprintf(env.stdout, "Alignment saved to: %s\n", path)
	}
	slog.Info("synthesis complete",
		"words", len(speech.Lipsync.Words),
		"events", len(speech.Lipsync.Events),
		"notices", len(speech.Lipsync.Notices),
		"duration", time.Since(start),
	)
	return nil
}

// ── align ─────────────────────────────────────────────────────────────────────

func runAlign(ctx context.Context, env *cmdEnv, args []string) error {
	fs := env.flagSet("align")
	in := fs.String("alignment", "", "alignment JSON file (bare alignment or with-timestamps response)")
	out := fs.String("o", env.cfg.Output.Path, "output directory and base filename")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return errors.New("align: -alignment is required")
	}

	alignment, err := artifact.ReadAlignment(*in)
	if err != nil {
		return err
	}
	a, err := env.newApp(false)
	if err != nil {
		return err
	}
	res, err := a.Align(ctx, alignment)
	if err != nil {
		return err
	}
	path, err := artifact.WriteVisemes(ctx, *out, res.Events)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "Viseme data saved to: %s\n", path)
	return nil
}

// ── voices ────────────────────────────────────────────────────────────────────

func runVoices(ctx context.Context, env *cmdEnv, args []string) error {
	if err := env.flagSet("voices").Parse(args); err != nil {
		return err
	}
	a, err := env.newApp(true)
	if err != nil {
		return err
	}
	voices, err := a.ListVoices(ctx)
	if err != nil {
		return err
	}
	if len(voices) == 0 {
		fmt.Fprintln(env.stdout, "No voices found for this account.")
		return nil
	}

	fmt.Fprintln(env.stdout, "\n=== Available Voices ===")
	tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VOICE NAME\tVOICE ID\tCATEGORY\tDESCRIPTION\tPREVIEW")
	for _, v := range voices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncate(v.Name, 20),
			truncate(v.ID, 20),
			truncate(v.Metadata["category"], 15),
			truncate(v.Metadata["description"], 30),
			truncate(v.Metadata["preview_url"], 40),
		)
	}
	return tw.Flush()
}

// ── account ───────────────────────────────────────────────────────────────────

func runAccount(ctx context.Context, env *cmdEnv, args []string) error {
	if err := env.flagSet("account").Parse(args); err != nil {
		return err
	}
	a, err := env.newApp(true)
	if err != nil {
		return err
	}
	acct, err := a.Account(ctx)
	if err != nil {
		return err
	}
	s := acct.Subscription

	fmt.Fprintln(env.stdout, "\n=== Logged User ===")
	fmt.Fprintf(env.stdout, "ID: %s\nName: %s\n\n", acct.UserID, acct.FirstName)
	fmt.Fprintln(env.stdout, "=== Subscription Status ===")

	renewal := "N/A"
	if !s.NextCharacterCountReset.IsZero() {
		renewal = s.NextCharacterCountReset.Local().Format(time.DateTime)
	}
	canExtend := "No"
	if s.CanExtendCharacterLimit {
		canExtend = "Yes"
	}

	tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
	rows := [][2]any{
		{"Plan", s.Tier},
		{"Status", s.Status},
		{"Character Limit", s.CharacterLimit},
		{"Characters Used", s.CharacterCount},
		{"Characters Remaining", s.CharactersRemaining()},
		{"Next Renewal", renewal},
		{"Can Extend", canExtend},
		{"Voice Limit", s.VoiceLimit},
		{"Voices Used", s.VoiceSlotsUsed},
		{"Professional Voice Limit", s.ProfessionalVoiceLimit},
		{"Professional Voices Used", s.ProfessionalVoiceSlotsUsed},
		{"Billing Period", s.BillingPeriod},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", r[0], r[1])
	}
	return tw.Flush()
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(ctx context.Context, env *cmdEnv, args []string) error {
	fs := env.flagSet("serve")
	addr := fs.String("addr", env.cfg.Server.ListenAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	env.cfg.Server.ListenAddr = *addr

	a, err := env.newApp(true)
	if err != nil {
		// Alignment works without a provider; only synthesis is lost.
		slog.Warn("tts provider unavailable, serving alignment only", "err", err)
		if a, err = env.newApp(false); err != nil {
			return err
		}
	}
	printStartupSummary(env.stdout, env.cfg)

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := a.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := a.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// truncate shortens s to at most maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return strings.Repeat(".", maxLen)
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	tts := cfg.Providers.TTS.Name
	if tts == "" {
		tts = "(not configured)"
	} else if cfg.Providers.TTS.Model != "" {
		tts += " / " + cfg.Providers.TTS.Model
	}
	dict := cfg.Dictionary.Path
	if dict == "" {
		dict = "(built-in)"
	}
	fmt.Fprintln(w, "visemetrack startup summary")
	fmt.Fprintf(w, "  TTS          : %s\n", tts)
	fmt.Fprintf(w, "  Fallbacks    : %d\n", len(cfg.Providers.TTSFallbacks))
	fmt.Fprintf(w, "  Dictionary   : %s (%s)\n", dict, cfg.Dictionary.Index)
	fmt.Fprintf(w, "  Listen addr  : %s\n", cfg.Server.ListenAddr)
}
