package pronounce

import "github.com/antzucaro/matchr"

// Match is a dictionary word found near a query word.
type Match struct {
	// Word is the dictionary key.
	Word string

	// Distance is the Levenshtein distance between the query and Word.
	Distance int
}

// Matcher finds the dictionary word nearest to a query.
//
// Implementations must be safe for concurrent use.
type Matcher interface {
	// Nearest returns the closest dictionary word whose distance to word is at
	// most maxDist. ok is false when no such word exists.
	Nearest(word string, maxDist int) (m Match, ok bool)
}

// Better reports whether candidate c beats the current best b for query q.
// Smaller distance wins. Equal distances are broken by the higher
// Jaro-Winkler similarity to q (shared prefixes score higher), then by the
// lexically smaller word, so every Matcher implementation agrees.
func Better(q string, c, b Match) bool {
	if c.Distance != b.Distance {
		return c.Distance < b.Distance
	}
	cj := matchr.JaroWinkler(q, c.Word, false)
	bj := matchr.JaroWinkler(q, b.Word, false)
	if cj != bj {
		return cj > bj
	}
	return c.Word < b.Word
}

// Distance is the edit distance used by every matcher.
func Distance(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Linear is a [Matcher] that scans every dictionary word. The scan stops early
// when an exact match is seen.
type Linear struct {
	dict Dictionary
}

// Ensure Linear implements Matcher at compile time.
var _ Matcher = (*Linear)(nil)

// NewLinear returns a linear-scan matcher over dict.
func NewLinear(dict Dictionary) *Linear {
	return &Linear{dict: dict}
}

// Nearest implements [Matcher].
func (l *Linear) Nearest(word string, maxDist int) (Match, bool) {
	var best Match
	found := false
	for _, w := range l.dict.Words() {
		c := Match{Word: w, Distance: Distance(word, w)}
		if !found || Better(word, c, best) {
			best = c
			found = true
		}
		if c.Distance == 0 {
			break
		}
	}
	if !found || best.Distance > maxDist {
		return Match{}, false
	}
	return best, true
}
