// Package config provides the configuration schema, loader, and provider
// registry for visemetrack.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DictionaryIndex selects the nearest-word search structure.
type DictionaryIndex string

const (
	// IndexLinear scans every dictionary word.
	IndexLinear DictionaryIndex = "linear"

	// IndexBKTree uses a BK-tree keyed on edit distance.
	IndexBKTree DictionaryIndex = "bktree"
)

// IsValid reports whether i is a recognised index kind.
func (i DictionaryIndex) IsValid() bool {
	return i == IndexLinear || i == IndexBKTree
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Voice      VoiceConfig      `yaml:"voice"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Lipsync    LipsyncConfig    `yaml:"lipsync"`
	Output     PathConfig       `yaml:"output"`
	Input      PathConfig       `yaml:"input"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP service listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, receives log output through a size-rotated writer
	// instead of stderr.
	LogFile string `yaml:"log_file"`
}

// ProvidersConfig declares the TTS provider and the ordered list of
// fallbacks tried when it fails. Each entry selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all providers.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above, such as "transport" and "output_format".
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] when it is a string, or "".
func (e ProviderEntry) OptionString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// VoiceConfig specifies the default voice and its synthesis settings.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Stability in [0, 1]. Lower values are more expressive.
	Stability float64 `yaml:"stability"`

	// SimilarityBoost in [0, 1].
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// Style exaggeration in [0, 1].
	Style float64 `yaml:"style"`

	UseSpeakerBoost bool `yaml:"use_speaker_boost"`

	// Speed is the speaking-rate multiplier. 0 leaves the provider default.
	Speed float64 `yaml:"speed"`
}

// DictionaryConfig selects the pronunciation dictionary.
type DictionaryConfig struct {
	// Path is a CMU-format dictionary file. Empty selects the built-in
	// dictionary.
	Path string `yaml:"path"`

	// Index selects the nearest-word search structure. Default: linear.
	Index DictionaryIndex `yaml:"index"`
}

// LipsyncConfig tunes word resolution.
type LipsyncConfig struct {
	// SilencePhoneme is emitted for words that cannot be resolved.
	SilencePhoneme string `yaml:"silence_phoneme"`

	// MinFuzzyDistance and FuzzyRatio define the largest accepted edit
	// distance: max(MinFuzzyDistance, floor(FuzzyRatio × len(word))).
	MinFuzzyDistance int     `yaml:"min_fuzzy_distance"`
	FuzzyRatio       float64 `yaml:"fuzzy_ratio"`
}

// PathConfig holds a single filesystem path.
type PathConfig struct {
	Path string `yaml:"path"`
}

// Default voice and model used when the config leaves them unset.
const (
	DefaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"
	DefaultModel      = "eleven_flash_v2_5"
	DefaultListenAddr = ":8080"
	DefaultInputPath  = "./input/speech.txt"
	DefaultOutputPath = "./output/speech_longer"
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Providers: ProvidersConfig{
			TTS: ProviderEntry{
				Name:  "elevenlabs",
				Model: DefaultModel,
			},
		},
		Voice: VoiceConfig{
			VoiceID:         DefaultVoiceID,
			Stability:       0.3,
			SimilarityBoost: 0.4,
			Style:           1,
			UseSpeakerBoost: false,
			Speed:           0.33,
		},
		Dictionary: DictionaryConfig{Index: IndexLinear},
		Lipsync: LipsyncConfig{
			SilencePhoneme:   "SIL",
			MinFuzzyDistance: 2,
			FuzzyRatio:       0.3,
		},
		Output: PathConfig{Path: DefaultOutputPath},
		Input:  PathConfig{Path: DefaultInputPath},
	}
}
