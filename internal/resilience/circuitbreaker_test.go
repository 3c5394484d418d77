package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/visemetrack/pkg/provider/tts"
	ttsmock "github.com/MrWong99/visemetrack/pkg/provider/tts/mock"
)

var (
	errUpstream = errors.New("elevenlabs: 503 service unavailable")
	errBadVoice = errors.New("elevenlabs: voice not found")
)

// speak routes one synthesis request for p through cb.
func speak(cb *CircuitBreaker, p *ttsmock.Provider) error {
	return cb.Execute(func() error {
		_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi.", VoiceID: "v1"})
		return err
	})
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "elevenlabs"})

	if cb.Name() != "elevenlabs" {
		t.Errorf("Name() = %q, want elevenlabs", cb.Name())
	}
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = (%d, %v, %d), want (5, 30s, 3)", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ProviderOutage(t *testing.T) {
	tests := []struct {
		name string
		// outcomes lists the provider result per call; nil is a success.
		outcomes []error
		want     []State
	}{
		{
			name:     "healthy provider stays closed",
			outcomes: []error{nil, nil, nil},
			want:     []State{StateClosed, StateClosed, StateClosed},
		},
		{
			name:     "consecutive failures open",
			outcomes: []error{errUpstream, errUpstream, errUpstream},
			want:     []State{StateClosed, StateClosed, StateOpen},
		},
		{
			name:     "success clears the streak",
			outcomes: []error{errUpstream, errUpstream, nil, errUpstream, errUpstream},
			want:     []State{StateClosed, StateClosed, StateClosed, StateClosed, StateClosed},
		},
		{
			name:     "caller cancellation is not an outage",
			outcomes: []error{context.Canceled, fmt.Errorf("elevenlabs: read: %w", context.Canceled), context.Canceled},
			want:     []State{StateClosed, StateClosed, StateClosed},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Name:         "elevenlabs",
				MaxFailures:  3,
				ResetTimeout: time.Hour,
			})
			p := &ttsmock.Provider{SynthesizeResult: &tts.Synthesis{Format: "mp3_44100_128"}}

			for i, outcome := range tc.outcomes {
				p.SynthesizeErr = outcome
				err := speak(cb, p)
				if !errors.Is(err, outcome) || (outcome == nil && err != nil) {
					t.Fatalf("call %d: err = %v, want %v passed through", i, err, outcome)
				}
				if got := cb.State(); got != tc.want[i] {
					t.Fatalf("call %d: state = %v, want %v", i, got, tc.want[i])
				}
			}
		})
	}
}

func TestCircuitBreaker_OpenSkipsProvider(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "elevenlabs", MaxFailures: 2, ResetTimeout: time.Hour})
	p := &ttsmock.Provider{SynthesizeErr: errUpstream}

	_ = speak(cb, p)
	_ = speak(cb, p)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	p.SynthesizeErr = nil
	if err := speak(cb, p); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := len(p.Calls()); n != 2 {
		t.Errorf("provider called %d times, want 2 (open breaker must not call it)", n)
	}
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	const cooldown = 20 * time.Millisecond

	// tripped returns a breaker that has just opened on p.
	tripped := func(t *testing.T, p *ttsmock.Provider) *CircuitBreaker {
		t.Helper()
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name:         "elevenlabs",
			MaxFailures:  1,
			ResetTimeout: cooldown,
			HalfOpenMax:  2,
		})
		p.SynthesizeErr = errUpstream
		_ = speak(cb, p)
		if cb.State() != StateOpen {
			t.Fatalf("state = %v, want open", cb.State())
		}
		time.Sleep(2 * cooldown)
		if cb.State() != StateHalfOpen {
			t.Fatalf("state after cooldown = %v, want half-open", cb.State())
		}
		return cb
	}

	t.Run("trial calls succeed", func(t *testing.T) {
		p := &ttsmock.Provider{}
		cb := tripped(t, p)
		p.SynthesizeErr = nil

		if err := speak(cb, p); err != nil {
			t.Fatalf("first trial call: %v", err)
		}
		if cb.State() != StateHalfOpen {
			t.Errorf("state after one trial call = %v, want half-open", cb.State())
		}
		if err := speak(cb, p); err != nil {
			t.Fatalf("second trial call: %v", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("state after trial calls = %v, want closed", cb.State())
		}
	})

	t.Run("trial call fails", func(t *testing.T) {
		p := &ttsmock.Provider{}
		cb := tripped(t, p)

		if err := speak(cb, p); !errors.Is(err, errUpstream) {
			t.Fatalf("trial call err = %v, want upstream error", err)
		}
		if cb.State() != StateOpen {
			t.Errorf("state = %v, want open again", cb.State())
		}
		if err := speak(cb, p); !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("err = %v, want ErrCircuitOpen", err)
		}
	})
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "elevenlabs", MaxFailures: 1, ResetTimeout: time.Hour})
	p := &ttsmock.Provider{SynthesizeErr: errUpstream}
	_ = speak(cb, p)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	cb.Reset()
	p.SynthesizeErr = nil
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
	if err := speak(cb, p); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
}

func TestCircuitBreaker_CustomIsFailure(t *testing.T) {
	// A wrong voice id is a request problem, not a provider outage.
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "elevenlabs",
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errBadVoice) && CountsAsFailure(err) },
	})
	p := &ttsmock.Provider{SynthesizeErr: errBadVoice}

	for range 3 {
		if err := speak(cb, p); !errors.Is(err, errBadVoice) {
			t.Fatalf("err = %v, want errBadVoice", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}

	p.SynthesizeErr = errUpstream
	_ = speak(cb, p)
	if cb.State() != StateOpen {
		t.Errorf("state after outage = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_NamedAfterFallbackEntry(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errUpstream}
	backup := &ttsmock.Provider{SynthesizeErr: errUpstream}

	var attempts []string
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		OnAttempt:      func(name string, _ error) { attempts = append(attempts, name) },
	})
	fb.AddFallback("elevenlabs#1", backup)

	for i, e := range fb.group.entries {
		if e.breaker.Name() != e.name {
			t.Errorf("entry %d breaker name = %q, want %q", i, e.breaker.Name(), e.name)
		}
	}

	if _, err := fb.Synthesize(context.Background(), tts.Request{Text: "Hi.", VoiceID: "v1"}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if len(attempts) != 2 || attempts[0] != "elevenlabs" || attempts[1] != "elevenlabs#1" {
		t.Errorf("attempts = %v, want [elevenlabs elevenlabs#1]", attempts)
	}
	states := fb.States()
	if states["elevenlabs"] != StateOpen || states["elevenlabs#1"] != StateOpen {
		t.Errorf("states = %v, want both open", states)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
