package lipsync

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/visemetrack/internal/observe"
	"github.com/MrWong99/visemetrack/pkg/types"
)

// Result is the output of a successful [Pipeline.Run].
type Result struct {
	// Words holds every resolved word in document order.
	Words []ResolvedWord

	// Events is the flat, time-ordered viseme timeline.
	Events []VisemeEvent

	// Notices lists every recovered anomaly in the order it occurred.
	Notices []Notice
}

// PipelineOption is a functional option for configuring a [Pipeline].
type PipelineOption func(*Pipeline)

// WithVisemeTable replaces the phoneme → viseme table. Default:
// [DefaultVisemeTable].
func WithVisemeTable(t VisemeTable) PipelineOption {
	return func(p *Pipeline) {
		p.table = t
	}
}

// WithMetrics records per-run counters and durations on m. When nil (the
// default) nothing is recorded.
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline validates an alignment and runs segmentation, resolution and
// timeline building over it. It holds no mutable state and is safe for
// concurrent use.
type Pipeline struct {
	resolver *Resolver
	table    VisemeTable
	metrics  *observe.Metrics
}

// NewPipeline returns a [Pipeline] resolving words with r.
func NewPipeline(r *Resolver, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		resolver: r,
		table:    DefaultVisemeTable(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run converts a into a viseme timeline. ctx carries tracing and logging
// context only; the run is synchronous and cannot be cancelled midway.
//
// Returns an error wrapping [ErrMalformedInput] when a is structurally
// invalid, in which case no stage runs and the result is nil.
func (p *Pipeline) Run(ctx context.Context, a types.CharacterAlignment) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "lipsync.Run")
	defer span.End()
	start := time.Now()

	if err := Validate(a); err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}

	words := Segment(a)

	res := &Result{Words: make([]ResolvedWord, 0, len(words))}
	outcomes := map[string]int64{}
	for _, w := range words {
		rw, notice := p.resolver.Resolve(w)
		res.Words = append(res.Words, rw)
		if notice == nil {
			outcomes["exact"]++
			continue
		}
		outcomes[string(notice.Kind)]++
		res.Notices = append(res.Notices, *notice)
	}

	events, unmapped := BuildTimeline(res.Words, p.table)
	res.Events = events
	res.Notices = append(res.Notices, unmapped...)

	log := observe.Logger(ctx)
	for _, n := range res.Notices {
		log.Warn(n.String(), "kind", string(n.Kind), "word", n.Word)
	}

	span.SetAttributes(
		attribute.Int("lipsync.characters", a.Len()),
		attribute.Int("lipsync.words", len(res.Words)),
		attribute.Int("lipsync.events", len(res.Events)),
		attribute.Int("lipsync.notices", len(res.Notices)),
	)
	if p.metrics != nil {
		for outcome, n := range outcomes {
			p.metrics.RecordWordsResolved(ctx, outcome, n)
		}
		p.metrics.UnmappedPhonemes.Add(ctx, int64(len(unmapped)))
		p.metrics.VisemeEvents.Add(ctx, int64(len(res.Events)))
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}
	log.Debug("lipsync run complete",
		"words", len(res.Words),
		"events", len(res.Events),
		"notices", len(res.Notices),
	)
	return res, nil
}

// Validate checks that a is a usable alignment: non-empty, three parallel
// slices of equal length, finite non-negative times with start <= end, and
// non-decreasing start times. The returned error wraps [ErrMalformedInput].
func Validate(a types.CharacterAlignment) error {
	if a.IsEmpty() {
		return fmt.Errorf("%w: empty transcript", ErrMalformedInput)
	}
	n := len(a.Characters)
	if len(a.StartTimes) != n || len(a.EndTimes) != n {
		return fmt.Errorf("%w: %d characters, %d start times, %d end times",
			ErrMalformedInput, n, len(a.StartTimes), len(a.EndTimes))
	}
	prev := 0.0
	for i := range n {
		s, e := a.StartTimes[i], a.EndTimes[i]
		if !validTime(s) || !validTime(e) {
			return fmt.Errorf("%w: character %d has invalid time [%v, %v]", ErrMalformedInput, i, s, e)
		}
		if s > e {
			return fmt.Errorf("%w: character %d starts at %v after it ends at %v", ErrMalformedInput, i, s, e)
		}
		if s < prev {
			return fmt.Errorf("%w: character %d starts at %v before character %d at %v", ErrMalformedInput, i, s, i-1, prev)
		}
		prev = s
	}
	return nil
}

// ValidateText rejects blank input text before a synthesis request is made.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: input text is empty", ErrMalformedInput)
	}
	return nil
}

func validTime(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
