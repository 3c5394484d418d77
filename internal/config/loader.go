package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvAPIKey  = "ELEVEN_LABS_API_KEY"
	EnvVoiceID = "ELEVEN_LABS_VOICE_ID"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts": {"elevenlabs"},
}

// validTransports lists the values accepted for the "transport" provider option.
var validTransports = []string{"http", "websocket"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like [Load] but returns [Default] when no file exists
// at path. Any other failure is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Keys absent from the document keep their default
// value; an empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv loads the given dotenv files (".env" when none are named) into the
// process environment without overriding variables that are already set,
// then fills empty credentials in cfg from [EnvAPIKey] and [EnvVoiceID].
// Missing dotenv files are ignored.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env file %q: %w", f, err)
		}
	}

	key := os.Getenv(EnvAPIKey)
	if cfg.Providers.TTS.APIKey == "" {
		cfg.Providers.TTS.APIKey = key
	}
	for i := range cfg.Providers.TTSFallbacks {
		fb := &cfg.Providers.TTSFallbacks[i]
		if fb.APIKey == "" && fb.Name == "elevenlabs" {
			fb.APIKey = key
		}
	}
	if cfg.Voice.VoiceID == "" {
		cfg.Voice.VoiceID = os.Getenv(EnvVoiceID)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	errs = append(errs, validateEntry("providers.tts", cfg.Providers.TTS)...)
	for i, fb := range cfg.Providers.TTSFallbacks {
		prefix := fmt.Sprintf("providers.tts_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateEntry(prefix, fb)...)
	}

	// Voice
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"stability", cfg.Voice.Stability},
		{"similarity_boost", cfg.Voice.SimilarityBoost},
		{"style", cfg.Voice.Style},
	} {
		if f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("voice.%s %.2f is out of range [0, 1]", f.name, f.v))
		}
	}
	if cfg.Voice.Speed < 0 || cfg.Voice.Speed > 4 {
		errs = append(errs, fmt.Errorf("voice.speed %.2f is out of range [0, 4]", cfg.Voice.Speed))
	}

	// Dictionary
	if cfg.Dictionary.Index != "" && !cfg.Dictionary.Index.IsValid() {
		errs = append(errs, fmt.Errorf("dictionary.index %q is invalid; valid values: linear, bktree", cfg.Dictionary.Index))
	}

	// Lipsync
	if cfg.Lipsync.MinFuzzyDistance < 0 {
		errs = append(errs, fmt.Errorf("lipsync.min_fuzzy_distance %d must not be negative", cfg.Lipsync.MinFuzzyDistance))
	}
	if cfg.Lipsync.FuzzyRatio < 0 || cfg.Lipsync.FuzzyRatio > 1 {
		errs = append(errs, fmt.Errorf("lipsync.fuzzy_ratio %.2f is out of range [0, 1]", cfg.Lipsync.FuzzyRatio))
	}

	return errors.Join(errs...)
}

func validateEntry(prefix string, e ProviderEntry) []error {
	validateProviderName("tts", e.Name)

	var errs []error
	if t := e.OptionString("transport"); t != "" && !slices.Contains(validTransports, t) {
		errs = append(errs, fmt.Errorf("%s.options.transport %q is invalid; valid values: http, websocket", prefix, t))
	}
	if v, ok := e.Options["transport"]; ok {
		if _, isString := v.(string); !isString {
			errs = append(errs, fmt.Errorf("%s.options.transport must be a string", prefix))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
