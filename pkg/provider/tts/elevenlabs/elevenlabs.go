// Package elevenlabs provides an ElevenLabs-backed TTS provider that returns
// character-level timestamps alongside the rendered audio. It implements the
// tts.Provider interface.
//
// Two transports are supported. [TransportHTTP] (the default) uses the
// with-timestamps REST endpoint and returns encoded audio in a single
// response. [TransportWebSocket] uses the stream-input WebSocket API and
// assembles the streamed PCM chunks and their chunk-relative alignments into
// one [tts.Synthesis].
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrWong99/visemetrack/pkg/provider/tts"
	"github.com/MrWong99/visemetrack/pkg/types"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"
	defaultStreamFmt = "pcm_16000"

	// errBodyLimit caps how much of an error response body is quoted back.
	errBodyLimit = 512
)

// ErrUnauthorized is returned when ElevenLabs rejects the API key.
var ErrUnauthorized = errors.New("elevenlabs: unauthorized")

// Transport selects how synthesis requests reach ElevenLabs.
type Transport string

const (
	// TransportHTTP uses POST /v1/text-to-speech/{voice}/with-timestamps.
	TransportHTTP Transport = "http"

	// TransportWebSocket uses the stream-input WebSocket endpoint.
	TransportWebSocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportHTTP || t == TransportWebSocket
}

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128",
// "pcm_16000"). The WebSocket transport requires a pcm_* format; when the
// format is left at its default, the WebSocket transport switches to
// pcm_16000 automatically.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
		p.formatSet = true
	}
}

// WithBaseURL overrides the API base URL. The WebSocket URL is derived from it
// by swapping http(s) for ws(s).
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTransport selects the synthesis transport. Default: [TransportHTTP].
func WithTransport(t Transport) Option {
	return func(p *Provider) {
		p.transport = t
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithDefaultSettings sets the voice settings used when a request carries
// none.
func WithDefaultSettings(s tts.VoiceSettings) Option {
	return func(p *Provider) {
		p.defaults = &s
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	formatSet    bool
	baseURL      string
	transport    Transport
	defaults     *tts.VoiceSettings
	httpClient   *http.Client
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		transport:    TransportHTTP,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if !p.transport.IsValid() {
		return nil, fmt.Errorf("elevenlabs: unknown transport %q", p.transport)
	}
	if p.transport == TransportWebSocket {
		if !p.formatSet {
			p.outputFormat = defaultStreamFmt
		}
		if _, err := pcmSampleRate(p.outputFormat); err != nil {
			return nil, err
		}
	}
	if _, err := url.Parse(p.baseURL); err != nil {
		return nil, fmt.Errorf("elevenlabs: base url: %w", err)
	}
	return p, nil
}

// Synthesize renders req with the configured transport.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Synthesis, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	if req.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	if p.transport == TransportWebSocket {
		return p.synthesizeStream(ctx, req)
	}
	return p.synthesizeHTTP(ctx, req)
}

// ---- REST payloads ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           float64  `json:"style"`
	UseSpeakerBoost bool     `json:"use_speaker_boost"`
	Speed           *float64 `json:"speed,omitempty"`
}

// timestampsRequest is the body of the with-timestamps call.
type timestampsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// timestampsResponse is the with-timestamps response body.
type timestampsResponse struct {
	AudioBase64         string                    `json:"audio_base64"`
	Alignment           *types.CharacterAlignment `json:"alignment"`
	NormalizedAlignment *types.CharacterAlignment `json:"normalized_alignment"`
}

func (p *Provider) settingsFor(req tts.Request) *voiceSettings {
	s := req.Settings
	if s == nil {
		s = p.defaults
	}
	if s == nil {
		return nil
	}
	vs := &voiceSettings{
		Stability:       s.Stability,
		SimilarityBoost: s.SimilarityBoost,
		Style:           s.Style,
		UseSpeakerBoost: s.UseSpeakerBoost,
	}
	if s.Speed != 0 {
		speed := s.Speed
		vs.Speed = &speed
	}
	return vs
}

func (p *Provider) synthesizeHTTP(ctx context.Context, req tts.Request) (*tts.Synthesis, error) {
	body, err := json.Marshal(timestampsRequest{
		Text:          req.Text,
		ModelID:       p.model,
		VoiceSettings: p.settingsFor(req),
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := buildTimestampsURL(p.baseURL, req.VoiceID, p.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	data, err := p.do(httpReq, "synthesize")
	if err != nil {
		return nil, err
	}
	return parseTimestampsResponse(data, p.outputFormat)
}

// parseTimestampsResponse decodes a with-timestamps body into a Synthesis.
func parseTimestampsResponse(data []byte, format string) (*tts.Synthesis, error) {
	var tr timestampsResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize decode: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(tr.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize audio: %w", err)
	}
	s := &tts.Synthesis{Audio: audio, Format: format}
	if tr.Alignment != nil {
		s.Alignment = *tr.Alignment
	}
	if tr.NormalizedAlignment != nil {
		s.NormalizedAlignment = *tr.NormalizedAlignment
	}
	if s.TimingAlignment().IsEmpty() {
		return nil, errors.New("elevenlabs: synthesize: response carries no alignment")
	}
	return s, nil
}

// do executes req with the API key attached and returns the body of a 2xx
// response. op names the operation in error messages.
func (p *Provider) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %s HTTP: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return nil, fmt.Errorf("elevenlabs: %s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %s read: %w", op, err)
	}
	return data, nil
}

// ---- helpers ----

// buildTimestampsURL constructs the with-timestamps endpoint for a voice.
func buildTimestampsURL(base, voiceID, format string) string {
	q := url.Values{}
	if format != "" {
		q.Set("output_format", format)
	}
	u := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps", base, url.PathEscape(voiceID))
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}
