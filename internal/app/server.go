package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/visemetrack/internal/artifact"
	"github.com/MrWong99/visemetrack/internal/health"
	"github.com/MrWong99/visemetrack/internal/lipsync"
	"github.com/MrWong99/visemetrack/internal/observe"
	"github.com/MrWong99/visemetrack/internal/resilience"
	"github.com/MrWong99/visemetrack/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/visemetrack/pkg/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// visemesRequest is the body of POST /v1/visemes.
type visemesRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

// visemesResponse is returned by POST /v1/visemes and POST /v1/align. Audio
// and Format are empty for /v1/align.
type visemesResponse struct {
	Format    string                    `json:"audio_format,omitempty"`
	Audio     []byte                    `json:"audio_base64,omitempty"`
	Alignment *types.CharacterAlignment `json:"alignment,omitempty"`
	Visemes   []lipsync.VisemeEvent     `json:"visemes"`
	Words     []wordResponse            `json:"words"`
	Notices   []lipsync.Notice          `json:"notices"`
}

type wordResponse struct {
	Text     string   `json:"text"`
	Start    float64  `json:"start"`
	End      float64  `json:"end"`
	Phonemes []string `json:"phonemes"`
}

type voiceResponse struct {
	ID       string            `json:"voice_id"`
	Name     string            `json:"name"`
	Provider string            `json:"provider,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type accountResponse struct {
	UserID                  string    `json:"user_id"`
	FirstName               string    `json:"first_name,omitempty"`
	Tier                    string    `json:"tier"`
	Status                  string    `json:"status"`
	CharacterCount          int       `json:"character_count"`
	CharacterLimit          int       `json:"character_limit"`
	CharactersRemaining     int       `json:"characters_remaining"`
	NextCharacterCountReset time.Time `json:"next_character_count_reset,omitzero"`
	VoiceSlotsUsed          int       `json:"voice_slots_used"`
	VoiceLimit              int       `json:"voice_limit"`
	BillingPeriod           string    `json:"billing_period,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP API:
//
//	POST /v1/visemes  synthesise text and return audio plus its timeline
//	POST /v1/align    derive a timeline from a posted alignment
//	GET  /v1/voices   list provider voices
//	GET  /v1/account  show provider quota
//	GET  /healthz, GET /readyz, GET /metrics
//
// Every route is wrapped in [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/visemes", a.handleVisemes)
	mux.HandleFunc("POST /v1/align", a.handleAlign)
	mux.HandleFunc("GET /v1/voices", a.handleVoices)
	mux.HandleFunc("GET /v1/account", a.handleAccount)

	health.New(a.version, a.readinessCheckers()...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

func (a *App) readinessCheckers() []health.Checker {
	return []health.Checker{{
		Name: "dictionary",
		Check: func(context.Context) error {
			if a.dict == nil || len(a.dict.Words()) == 0 {
				return errors.New("pronunciation dictionary is empty")
			}
			return nil
		},
	}}
}

func (a *App) handleVisemes(w http.ResponseWriter, r *http.Request) {
	var req visemesRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	speech, err := a.Synthesize(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := newVisemesResponse(speech.Lipsync)
	resp.Format = speech.Format
	resp.Audio = speech.Audio
	resp.Alignment = &speech.Alignment
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleAlign(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read request body: " + err.Error()})
		return
	}
	alignment, err := artifact.DecodeAlignment(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := a.Align(r.Context(), alignment)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVisemesResponse(res))
}

func (a *App) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := a.ListVoices(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]voiceResponse, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceResponse{ID: v.ID, Name: v.Name, Provider: v.Provider, Metadata: v.Metadata})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := a.Account(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	s := acct.Subscription
	writeJSON(w, http.StatusOK, accountResponse{
		UserID:                  acct.UserID,
		FirstName:               acct.FirstName,
		Tier:                    s.Tier,
		Status:                  s.Status,
		CharacterCount:          s.CharacterCount,
		CharacterLimit:          s.CharacterLimit,
		CharactersRemaining:     s.CharactersRemaining(),
		NextCharacterCountReset: s.NextCharacterCountReset,
		VoiceSlotsUsed:          s.VoiceSlotsUsed,
		VoiceLimit:              s.VoiceLimit,
		BillingPeriod:           s.BillingPeriod,
	})
}

func newVisemesResponse(res *lipsync.Result) visemesResponse {
	resp := visemesResponse{
		Visemes: res.Events,
		Words:   make([]wordResponse, 0, len(res.Words)),
		Notices: res.Notices,
	}
	if resp.Visemes == nil {
		resp.Visemes = []lipsync.VisemeEvent{}
	}
	if resp.Notices == nil {
		resp.Notices = []lipsync.Notice{}
	}
	for _, w := range res.Words {
		resp.Words = append(resp.Words, wordResponse{
			Text:     w.Text,
			Start:    w.Start,
			End:      w.End,
			Phonemes: w.Phonemes,
		})
	}
	return resp
}

// statusFor maps an operation error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrProviderAlignment):
		return http.StatusBadGateway
	case errors.Is(err, lipsync.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, elevenlabs.ErrUnauthorized),
		errors.Is(err, resilience.ErrAllFailed),
		errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		observe.Logger(r.Context()).Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}
