// Package pronounce provides pronunciation dictionaries and nearest-word
// matchers for the lip-sync pipeline.
//
// A [Dictionary] maps lower-case words to a whitespace-separated string of
// ARPAbet-style phoneme symbols. Dictionaries are read-only after
// construction and safe to share between goroutines without locking.
//
// A [Matcher] finds the dictionary word closest to an unknown word by
// Levenshtein distance. Two implementations are provided: [Linear] scans every
// key, [BKTree] prunes the search with the triangle inequality. Both return
// the same answer for the same dictionary, including on ties (see [Better]).
package pronounce

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Dictionary is a read-only pronunciation lookup.
type Dictionary interface {
	// Lookup returns the phoneme string for word. word must already be
	// lower-case.
	Lookup(word string) (phonemes string, ok bool)

	// Words returns every key in a stable order. Callers must not modify the
	// returned slice.
	Words() []string
}

// Map is an in-memory [Dictionary].
type Map struct {
	entries map[string]string
	words   []string
}

// Ensure Map implements Dictionary at compile time.
var _ Dictionary = (*Map)(nil)

// NewMap builds a [Map] from word → phoneme string pairs. Keys are
// lower-cased; when two keys collapse onto the same lower-case word the
// lexically smaller original key wins so the result does not depend on map
// iteration order. Entries without any phoneme symbols are dropped.
func NewMap(entries map[string]string) *Map {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	m := &Map{entries: make(map[string]string, len(entries))}
	for _, k := range keys {
		if strings.TrimSpace(entries[k]) == "" {
			continue
		}
		lk := strings.ToLower(k)
		if _, dup := m.entries[lk]; dup {
			continue
		}
		m.entries[lk] = entries[k]
		m.words = append(m.words, lk)
	}
	slices.Sort(m.words)
	return m
}

// Lookup implements [Dictionary].
func (m *Map) Lookup(word string) (string, bool) {
	p, ok := m.entries[word]
	return p, ok
}

// Words implements [Dictionary]. Words are sorted ascending.
func (m *Map) Words() []string {
	return m.words
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// LoadCMU reads a dictionary in CMU Pronouncing Dictionary format:
//
//	;;; comment
//	HELLO  HH AH0 L OW1
//	HELLO(1)  HH EH0 L OW1
//
// Alternate pronunciations (WORD(n)) are skipped in favour of the first
// pronunciation of each word. Keys are lower-cased. Inline "#" comments are
// stripped.
func LoadCMU(r io.Reader) (*Map, error) {
	entries := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";;;") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("pronounce: line %d: expected a word followed by phonemes", lineNum)
		}
		word := strings.ToLower(fields[0])
		if strings.HasSuffix(word, ")") && strings.Contains(word, "(") {
			continue
		}
		if _, dup := entries[word]; dup {
			continue
		}
		entries[word] = strings.Join(fields[1:], " ")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pronounce: read: %w", err)
	}
	return NewMap(entries), nil
}

// LoadFile is a convenience wrapper around [LoadCMU] that opens path.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pronounce: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadCMU(f)
}
