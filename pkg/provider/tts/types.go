package tts

import (
	"strings"
	"time"

	"github.com/MrWong99/visemetrack/pkg/types"
)

// VoiceProfile is re-exported so callers of this package need not import
// pkg/types for the common case.
type VoiceProfile = types.VoiceProfile

// VoiceSettings tunes how a voice renders a request.
type VoiceSettings struct {
	// Stability in [0, 1]. Lower values are more expressive.
	Stability float64

	// SimilarityBoost in [0, 1].
	SimilarityBoost float64

	// Style exaggeration in [0, 1].
	Style float64

	// UseSpeakerBoost toggles the provider's speaker similarity boost.
	UseSpeakerBoost bool

	// Speed adjusts speaking rate. 0 means provider default.
	Speed float64
}

// Request is a single synthesis request.
type Request struct {
	// Text is the full text to speak. Must not be blank.
	Text string

	// VoiceID selects the voice.
	VoiceID string

	// Settings overrides the voice defaults. Nil means provider defaults.
	Settings *VoiceSettings
}

// Synthesis is the result of a [Provider.Synthesize] call: the rendered audio
// plus the character-level timing the lip-sync pipeline consumes.
type Synthesis struct {
	// Audio holds the encoded audio bytes.
	Audio []byte

	// Format is the provider output format (e.g. "mp3_44100_128", "pcm_16000").
	Format string

	// Alignment is the timing of the text exactly as submitted.
	Alignment types.CharacterAlignment

	// NormalizedAlignment is the timing of the provider-normalised text
	// (numbers spelled out and so on). May be empty.
	NormalizedAlignment types.CharacterAlignment
}

// TimingAlignment returns the alignment the pipeline should use: the
// normalised alignment when present, the raw one otherwise.
func (s *Synthesis) TimingAlignment() types.CharacterAlignment {
	if !s.NormalizedAlignment.IsEmpty() {
		return s.NormalizedAlignment
	}
	return s.Alignment
}

// FileExtension maps Format onto a file extension for the audio artifact.
func (s *Synthesis) FileExtension() string {
	codec, _, _ := strings.Cut(s.Format, "_")
	switch codec {
	case "", "mp3":
		return "mp3"
	case "pcm":
		return "pcm"
	case "ulaw":
		return "ulaw"
	case "opus":
		return "opus"
	default:
		return codec
	}
}

// Account describes the authenticated user and their subscription.
type Account struct {
	UserID       string
	FirstName    string
	Subscription Subscription
}

// Subscription is the quota block of an [Account].
type Subscription struct {
	Tier                       string
	Status                     string
	CharacterLimit             int
	CharacterCount             int
	NextCharacterCountReset    time.Time
	CanExtendCharacterLimit    bool
	VoiceLimit                 int
	VoiceSlotsUsed             int
	ProfessionalVoiceLimit     int
	ProfessionalVoiceSlotsUsed int
	BillingPeriod              string
}

// CharactersRemaining returns the characters left in the current period.
func (s Subscription) CharactersRemaining() int {
	return s.CharacterLimit - s.CharacterCount
}
