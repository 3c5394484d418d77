package lipsync

import "math"

// BuildWord emits one event per phoneme of w. Each phoneme receives a slice
// of the word's duration proportional to its canonical duration, and its
// event is stamped at the running cursor rounded to the nearest millisecond.
// The cursor itself is never rounded, so rounding error does not accumulate.
//
// unmapped lists the phonemes that fell back to the silence descriptor, in
// order of appearance.
func BuildWord(w ResolvedWord, table VisemeTable) (events []VisemeEvent, unmapped []string) {
	if len(w.Phonemes) == 0 {
		return nil, nil
	}

	descs := make([]VisemeDescriptor, len(w.Phonemes))
	total := 0
	for i, ph := range w.Phonemes {
		d, ok := table.Lookup(ph)
		if !ok {
			unmapped = append(unmapped, ph)
		}
		descs[i] = d
		total += d.DurationMs
	}

	wordDuration := w.End - w.Start
	cursor := w.Start
	events = make([]VisemeEvent, 0, len(descs))
	for _, d := range descs {
		var fraction float64
		if total > 0 {
			fraction = float64(d.DurationMs) / float64(total)
		} else {
			fraction = 1 / float64(len(descs))
		}
		events = append(events, VisemeEvent{
			TimestampMs: int(math.Round(cursor * 1000)),
			Viseme:      d.Viseme,
		})
		cursor += fraction * wordDuration
	}
	return events, unmapped
}

// BuildTimeline concatenates the per-word events of words in order. Gaps
// between words are not filled with silence events.
func BuildTimeline(words []ResolvedWord, table VisemeTable) ([]VisemeEvent, []Notice) {
	n := 0
	for _, w := range words {
		n += len(w.Phonemes)
	}

	events := make([]VisemeEvent, 0, n)
	var notices []Notice
	for _, w := range words {
		ev, unmapped := BuildWord(w, table)
		events = append(events, ev...)
		for _, ph := range unmapped {
			notices = append(notices, Notice{Kind: NoticeUnmappedPhoneme, Word: w.Text, Phoneme: ph})
		}
	}
	return events, notices
}
