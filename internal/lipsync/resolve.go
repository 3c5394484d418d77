package lipsync

import (
	"math"
	"strings"

	"github.com/MrWong99/visemetrack/internal/pronounce"
)

const (
	// SilencePhoneme is the symbol emitted for unresolvable words.
	SilencePhoneme = "SIL"

	defaultMinFuzzyDistance = 2
	defaultFuzzyRatio       = 0.3
)

// ResolverOption is a functional option for configuring a [Resolver].
type ResolverOption func(*Resolver)

// WithMatcher replaces the nearest-word matcher. Default: a
// [pronounce.Linear] scan over the resolver's dictionary.
func WithMatcher(m pronounce.Matcher) ResolverOption {
	return func(r *Resolver) {
		r.matcher = m
	}
}

// WithFuzzyThreshold sets the acceptance rule for nearest-word matches: a
// candidate is accepted when its distance is at most
// max(minDistance, floor(ratio × len(word))). Default: 2 and 0.3.
func WithFuzzyThreshold(minDistance int, ratio float64) ResolverOption {
	return func(r *Resolver) {
		r.minDistance = minDistance
		r.ratio = ratio
	}
}

// WithSilencePhoneme overrides the symbol emitted for unresolvable words.
// Default: [SilencePhoneme].
func WithSilencePhoneme(symbol string) ResolverOption {
	return func(r *Resolver) {
		if symbol != "" {
			r.silence = symbol
		}
	}
}

// Resolver maps words to phoneme sequences. It never fails: words that cannot
// be resolved become a single silence phoneme.
//
// A Resolver is read-only after construction and safe for concurrent use as
// long as its dictionary and matcher are.
type Resolver struct {
	dict        pronounce.Dictionary
	matcher     pronounce.Matcher
	minDistance int
	ratio       float64
	silence     string
}

// NewResolver returns a [Resolver] backed by dict.
func NewResolver(dict pronounce.Dictionary, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		dict:        dict,
		minDistance: defaultMinFuzzyDistance,
		ratio:       defaultFuzzyRatio,
		silence:     SilencePhoneme,
	}
	for _, o := range opts {
		o(r)
	}
	if r.matcher == nil {
		r.matcher = pronounce.NewLinear(dict)
	}
	return r
}

// Threshold returns the largest edit distance accepted for word.
func (r *Resolver) Threshold(word string) int {
	return max(r.minDistance, int(math.Floor(r.ratio*float64(len(word)))))
}

// Resolve attaches phonemes to w. The returned notice is nil for an exact
// dictionary hit, and describes the substitution or the silence fallback
// otherwise.
func (r *Resolver) Resolve(w WordSpan) (ResolvedWord, *Notice) {
	lower := strings.ToLower(w.Text)

	if ph, ok := r.lookup(lower); ok {
		return ResolvedWord{WordSpan: w, Phonemes: ph}, nil
	}

	if m, ok := r.matcher.Nearest(lower, r.Threshold(lower)); ok {
		if ph, ok := r.lookup(m.Word); ok {
			return ResolvedWord{WordSpan: w, Phonemes: ph}, &Notice{
				Kind:       NoticeSubstituted,
				Word:       w.Text,
				Substitute: m.Word,
				Distance:   m.Distance,
			}
		}
	}

	return ResolvedWord{WordSpan: w, Phonemes: []string{r.silence}}, &Notice{
		Kind: NoticeUnresolved,
		Word: w.Text,
	}
}

// lookup returns the phonemes of a dictionary word. Entries that hold no
// symbols count as misses.
func (r *Resolver) lookup(word string) ([]string, bool) {
	s, ok := r.dict.Lookup(word)
	if !ok {
		return nil, false
	}
	ph := strings.Fields(s)
	return ph, len(ph) > 0
}
