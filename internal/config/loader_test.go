package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/visemetrack/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "visemetrack.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Voice.VoiceID != config.DefaultVoiceID {
		t.Errorf("voice_id: got %q, want default", cfg.Voice.VoiceID)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("server: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadOrDefault(bad); err == nil {
		t.Error("expected parse error for malformed file, got nil")
	}
}

// ApplyEnv tests mutate the process environment and cannot run in parallel.

func TestApplyEnv_FillsEmptyValues(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "sk-env")
	t.Setenv(config.EnvVoiceID, "voice-env")

	cfg := config.Default()
	cfg.Voice.VoiceID = ""
	cfg.Providers.TTSFallbacks = []config.ProviderEntry{{Name: "elevenlabs"}, {Name: "other"}}

	if err := config.ApplyEnv(cfg, filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "sk-env" {
		t.Errorf("api_key: got %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTSFallbacks[0].APIKey != "sk-env" {
		t.Errorf("fallback api_key: got %q", cfg.Providers.TTSFallbacks[0].APIKey)
	}
	if cfg.Providers.TTSFallbacks[1].APIKey != "" {
		t.Errorf("non-elevenlabs fallback got key %q", cfg.Providers.TTSFallbacks[1].APIKey)
	}
	if cfg.Voice.VoiceID != "voice-env" {
		t.Errorf("voice_id: got %q", cfg.Voice.VoiceID)
	}
}

func TestApplyEnv_ConfigWins(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "sk-env")

	cfg := config.Default()
	cfg.Providers.TTS.APIKey = "sk-file"
	if err := config.ApplyEnv(cfg, filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "sk-file" {
		t.Errorf("api_key: got %q, want config value", cfg.Providers.TTS.APIKey)
	}
	if cfg.Voice.VoiceID != config.DefaultVoiceID {
		t.Errorf("voice_id: got %q, want default kept", cfg.Voice.VoiceID)
	}
}

func TestApplyEnv_DotenvFile(t *testing.T) {
	// Registering through t.Setenv restores the variable after the test even
	// though godotenv sets it directly.
	t.Setenv(config.EnvAPIKey, "")
	os.Unsetenv(config.EnvAPIKey)

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte(config.EnvAPIKey+"=sk-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	if err := config.ApplyEnv(cfg, envFile); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "sk-dotenv" {
		t.Errorf("api_key: got %q, want value from dotenv", cfg.Providers.TTS.APIKey)
	}
}
