package lipsync

import (
	"strings"

	"github.com/MrWong99/visemetrack/pkg/types"
)

// Segment groups the characters of a into words. Word characters are ASCII
// letters, digits and underscore. A space or one of . , ! ? : ; closes the
// current word; any other character is skipped without closing it.
//
// a must be well formed (see [Validate]).
func Segment(a types.CharacterAlignment) []WordSpan {
	var (
		words []WordSpan
		buf   strings.Builder
		cur   WordSpan
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		cur.Text = buf.String()
		words = append(words, cur)
		buf.Reset()
	}

	for i, ch := range a.Characters {
		switch {
		case isWordChar(ch):
			if buf.Len() == 0 {
				cur.Start = a.StartTimes[i]
			}
			buf.WriteString(ch)
			cur.End = a.EndTimes[i]
		case isDelimiter(ch):
			flush()
		}
	}
	flush()
	return words
}

func isWordChar(ch string) bool {
	if len(ch) != 1 {
		return false
	}
	c := ch[0]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func isDelimiter(ch string) bool {
	switch ch {
	case " ", ".", ",", "!", "?", ":", ";":
		return true
	}
	return false
}
