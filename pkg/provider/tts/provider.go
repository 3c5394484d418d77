// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// renders a complete text into audio together with the per-character timing
// of the rendered speech. The timing is what the lip-sync pipeline turns into
// viseme events; the audio is passed through untouched.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any timestamp-capable TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel.
type Provider interface {
	// Synthesize renders req.Text with the requested voice and returns the
	// audio bytes alongside the character alignment. The full text must be
	// known up front; streaming input is not part of this contract.
	//
	// Returns an error if the request cannot be completed, the voice is
	// unknown or ctx is cancelled. A returned *Synthesis is always complete.
	Synthesize(ctx context.Context, req Request) (*Synthesis, error)

	// ListVoices returns all voice profiles available to the configured
	// credentials.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// Account returns the authenticated user and subscription quota.
	Account(ctx context.Context) (*Account, error)
}
