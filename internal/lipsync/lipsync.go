// Package lipsync turns a character-level, time-aligned transcript into a
// timeline of viseme (mouth-shape) events for facial animation.
//
// The work happens in three stages, each of which fully consumes its input
// before the next starts:
//
//  1. [Segment] collapses per-character timestamps into [WordSpan] values.
//  2. [Resolver] maps each word to ARPAbet phonemes through a pronunciation
//     dictionary, falling back to the nearest dictionary word by edit
//     distance and finally to silence.
//  3. [BuildTimeline] spreads each word's phonemes over the word's measured
//     duration, weighted by the canonical duration of each phoneme's viseme.
//
// [Pipeline] runs the three stages after validating the input. Word- and
// phoneme-level problems degrade to silence and are reported as [Notice]
// values; only structurally invalid input fails the run.
package lipsync

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is returned when the alignment handed to the pipeline is
// structurally invalid. No partial output accompanies it.
var ErrMalformedInput = errors.New("lipsync: malformed input")

// WordSpan is one word of the transcript with its spoken time range.
type WordSpan struct {
	// Text holds only word characters.
	Text string

	// Start is the start time of the first character, in seconds.
	Start float64

	// End is the end time of the last character, in seconds. End >= Start.
	End float64
}

// ResolvedWord is a [WordSpan] with its phoneme sequence attached.
type ResolvedWord struct {
	WordSpan

	// Phonemes is never empty and never contains an empty symbol.
	Phonemes []string
}

// VisemeEvent marks the onset of a viseme. It serialises to the
// {"timestamp": ms, "viseme": code} shape consumed by animation runtimes.
type VisemeEvent struct {
	TimestampMs int    `json:"timestamp"`
	Viseme      string `json:"viseme"`
}

// NoticeKind classifies a non-fatal anomaly.
type NoticeKind string

const (
	// NoticeSubstituted means an unknown word was replaced by its nearest
	// dictionary word.
	NoticeSubstituted NoticeKind = "substituted"

	// NoticeUnresolved means no dictionary word was close enough and the
	// word was rendered as silence.
	NoticeUnresolved NoticeKind = "unresolved"

	// NoticeUnmappedPhoneme means a phoneme had no viseme and the silence
	// viseme was used instead.
	NoticeUnmappedPhoneme NoticeKind = "unmapped_phoneme"
)

// Notice is a non-fatal anomaly recovered locally by the pipeline.
type Notice struct {
	Kind NoticeKind `json:"kind"`

	// Word is the transcript word the notice concerns.
	Word string `json:"word"`

	// Substitute is the dictionary word used instead (NoticeSubstituted).
	Substitute string `json:"substitute,omitempty"`

	// Distance is the edit distance to Substitute (NoticeSubstituted).
	Distance int `json:"distance,omitempty"`

	// Phoneme is the symbol without a viseme (NoticeUnmappedPhoneme).
	Phoneme string `json:"phoneme,omitempty"`
}

// String renders the notice as a human-readable warning.
func (n Notice) String() string {
	switch n.Kind {
	case NoticeSubstituted:
		return fmt.Sprintf("substituted %q with similar word %q", n.Word, n.Substitute)
	case NoticeUnresolved:
		return fmt.Sprintf("word not found and no close match: %q, using silence", n.Word)
	case NoticeUnmappedPhoneme:
		return fmt.Sprintf("phoneme %q in %q has no viseme, using silence", n.Phoneme, n.Word)
	default:
		return string(n.Kind) + ": " + n.Word
	}
}
