// Package types defines the shared types used across visemetrack packages.
//
// These types form the lingua franca between TTS providers, the lip-sync
// pipeline and the HTTP layer. They are intentionally minimal: each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

// CharacterAlignment is the per-character timing produced by a speech
// synthesiser. The three slices are parallel: Characters[i] was spoken from
// StartTimes[i] to EndTimes[i], both in seconds from the start of the audio.
//
// A well-formed alignment has slices of equal length, StartTimes[i] <=
// EndTimes[i] and non-decreasing start times. The JSON field names follow the
// ElevenLabs with-timestamps response so saved payloads can be replayed as-is.
type CharacterAlignment struct {
	Characters []string  `json:"characters"`
	StartTimes []float64 `json:"character_start_times_seconds"`
	EndTimes   []float64 `json:"character_end_times_seconds"`
}

// Len returns the number of characters in the alignment.
func (a CharacterAlignment) Len() int {
	return len(a.Characters)
}

// IsEmpty reports whether the alignment carries no characters at all.
func (a CharacterAlignment) IsEmpty() bool {
	return len(a.Characters) == 0 && len(a.StartTimes) == 0 && len(a.EndTimes) == 0
}

// Text concatenates the aligned characters back into the source text.
func (a CharacterAlignment) Text() string {
	n := 0
	for _, c := range a.Characters {
		n += len(c)
	}
	buf := make([]byte, 0, n)
	for _, c := range a.Characters {
		buf = append(buf, c...)
	}
	return string(buf)
}

// VoiceProfile describes a TTS voice as reported by a provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (category,
	// description, preview_url, labels, ...).
	Metadata map[string]string
}
