package resilience

import (
	"context"

	"github.com/MrWong99/visemetrack/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several TTS
// backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string {
	return f.group.Names()
}

// States returns each backend's circuit breaker state.
func (f *TTSFallback) States() map[string]State {
	return f.group.States()
}

// Synthesize renders req with the first healthy provider. Voice IDs are
// passed through unchanged, so fallbacks must share the voice namespace.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Synthesis, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Synthesis, error) {
		return p.Synthesize(ctx, req)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Account returns account details from the first healthy provider.
func (f *TTSFallback) Account(ctx context.Context) (*tts.Account, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Account, error) {
		return p.Account(ctx)
	})
}
