package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/visemetrack/pkg/provider/tts"
)

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if p.transport != TransportHTTP {
		t.Errorf("expected transport %q, got %q", TransportHTTP, p.transport)
	}
}

func TestNew_WebSocketSwitchesToPCM(t *testing.T) {
	p, err := New("key", WithTransport(TransportWebSocket))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.outputFormat != defaultStreamFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultStreamFmt, p.outputFormat)
	}
}

func TestNew_WebSocketRejectsMP3(t *testing.T) {
	_, err := New("key", WithTransport(TransportWebSocket), WithOutputFormat("mp3_44100_128"))
	if err == nil {
		t.Error("expected error for websocket transport with mp3 output")
	}
}

func TestNew_UnknownTransport(t *testing.T) {
	_, err := New("key", WithTransport("carrier-pigeon"))
	if err == nil {
		t.Error("expected error for unknown transport")
	}
}

// ---- URL construction ----

func TestBuildTimestampsURL(t *testing.T) {
	u := buildTimestampsURL("https://api.elevenlabs.io", "voice-abc123", "mp3_44100_128")
	want := "https://api.elevenlabs.io/v1/text-to-speech/voice-abc123/with-timestamps?output_format=mp3_44100_128"
	if u != want {
		t.Errorf("URL = %q, want %q", u, want)
	}
}

func TestBuildStreamURL(t *testing.T) {
	u, err := buildStreamURL("https://api.elevenlabs.io", "voice-abc123", "eleven_flash_v2_5", "pcm_16000")
	if err != nil {
		t.Fatalf("buildStreamURL: %v", err)
	}
	if !strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?") {
		t.Errorf("unexpected URL: %s", u)
	}
	for _, part := range []string{"model_id=eleven_flash_v2_5", "output_format=pcm_16000", "sync_alignment=true"} {
		if !strings.Contains(u, part) {
			t.Errorf("URL should contain %q, got: %s", part, u)
		}
	}
}

func TestPCMSampleRate(t *testing.T) {
	tests := []struct {
		format  string
		want    int
		wantErr bool
	}{
		{"pcm_16000", 16000, false},
		{"pcm_44100", 44100, false},
		{"mp3_44100_128", 0, true},
		{"pcm_", 0, true},
		{"pcm_abc", 0, true},
	}
	for _, tc := range tests {
		got, err := pcmSampleRate(tc.format)
		if (err != nil) != tc.wantErr {
			t.Errorf("pcmSampleRate(%q) err = %v, wantErr %v", tc.format, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("pcmSampleRate(%q) = %d, want %d", tc.format, got, tc.want)
		}
	}
}

// ---- HTTP synthesis ----

func TestSynthesize_HTTP(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	var gotBody timestampsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/text-to-speech/voice-1/with-timestamps" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != defaultOutputFmt {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("xi-api-key = %q", r.Header.Get("xi-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"audio_base64": "` + base64.StdEncoding.EncodeToString(audio) + `",
			"alignment": {
				"characters": ["H","i","."],
				"character_start_times_seconds": [0.0, 0.1, 0.2],
				"character_end_times_seconds": [0.1, 0.2, 0.3]
			},
			"normalized_alignment": {
				"characters": ["H","i","."],
				"character_start_times_seconds": [0.0, 0.12, 0.2],
				"character_end_times_seconds": [0.12, 0.2, 0.3]
			}
		}`))
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURL(srv.URL), WithDefaultSettings(tts.VoiceSettings{
		Stability:       0.3,
		SimilarityBoost: 0.4,
		Style:           1,
		Speed:           0.33,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi.", VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(s.Audio) != string(audio) {
		t.Errorf("audio = %q, want %q", s.Audio, audio)
	}
	if s.Format != defaultOutputFmt {
		t.Errorf("format = %q", s.Format)
	}
	if got := s.TimingAlignment().StartTimes[1]; got != 0.12 {
		t.Errorf("timing alignment should prefer normalized, start[1] = %f", got)
	}
	if gotBody.Text != "Hi." || gotBody.ModelID != defaultModel {
		t.Errorf("request body = %+v", gotBody)
	}
	if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.Stability != 0.3 {
		t.Fatalf("voice settings not sent: %+v", gotBody.VoiceSettings)
	}
	if gotBody.VoiceSettings.Speed == nil || *gotBody.VoiceSettings.Speed != 0.33 {
		t.Errorf("speed not sent: %+v", gotBody.VoiceSettings.Speed)
	}
}

func TestSynthesize_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi.", VoiceID: "v"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSynthesize_ServerErrorQuotesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"voice_not_found"}`))
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi.", VoiceID: "v"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "voice_not_found") {
		t.Errorf("error should quote status and body, got: %v", err)
	}
}

func TestSynthesize_RejectsBlankText(t *testing.T) {
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "  ", VoiceID: "v"}); err == nil {
		t.Error("expected error for blank text")
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi."}); err == nil {
		t.Error("expected error for empty voice ID")
	}
}

func TestParseTimestampsResponse_NoAlignment(t *testing.T) {
	_, err := parseTimestampsResponse([]byte(`{"audio_base64":""}`), "mp3_44100_128")
	if err == nil {
		t.Error("expected error when the response has no alignment")
	}
}

// ---- WebSocket synthesis ----

func TestSynthesize_WebSocketStitchesChunks(t *testing.T) {
	// 3200 bytes of pcm_16000 is 0.1s of audio.
	chunk1 := make([]byte, 3200)
	chunk2 := make([]byte, 1600)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		// BOI, text and flush.
		for range 3 {
			if _, _, err := conn.Read(ctx); err != nil {
				t.Errorf("read: %v", err)
				return
			}
		}

		msgs := []audioResponse{
			{
				Audio: base64.StdEncoding.EncodeToString(chunk1),
				NormalizedAlignment: &wsAlignment{
					Chars:            []string{"H", "i"},
					CharStartTimesMs: []float64{0, 50},
					CharDurationsMs:  []float64{50, 50},
				},
			},
			{
				Audio: base64.StdEncoding.EncodeToString(chunk2),
				NormalizedAlignment: &wsAlignment{
					Chars:            []string{"."},
					CharStartTimesMs: []float64{0},
					CharDurationsMs:  []float64{40},
				},
			},
			{IsFinal: true},
		}
		for _, m := range msgs {
			b, _ := json.Marshal(m)
			if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL), WithTransport(TransportWebSocket))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi.", VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(s.Audio) != len(chunk1)+len(chunk2) {
		t.Errorf("audio length = %d, want %d", len(s.Audio), len(chunk1)+len(chunk2))
	}

	a := s.TimingAlignment()
	if got := a.Text(); got != "Hi." {
		t.Fatalf("alignment text = %q, want %q", got, "Hi.")
	}
	wantStarts := []float64{0, 0.05, 0.1}
	wantEnds := []float64{0.05, 0.1, 0.14}
	for i := range wantStarts {
		if math.Abs(a.StartTimes[i]-wantStarts[i]) > 1e-9 {
			t.Errorf("start[%d] = %f, want %f", i, a.StartTimes[i], wantStarts[i])
		}
		if math.Abs(a.EndTimes[i]-wantEnds[i]) > 1e-9 {
			t.Errorf("end[%d] = %f, want %f", i, a.EndTimes[i], wantEnds[i])
		}
	}
}

// ---- Voice list response parsing ----

func TestParseVoicesResponse_Success(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Rachel",
				"category": "premade",
				"description": "calm narrator",
				"preview_url": "https://example.com/rachel.mp3",
				"labels": {"gender": "female", "accent": "american"}
			},
			{
				"voice_id": "def456",
				"name": "Adam",
				"category": "premade",
				"labels": {"gender": "male"}
			}
		]
	}`)

	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	rachel := profiles[0]
	if rachel.ID != "abc123" || rachel.Name != "Rachel" {
		t.Errorf("unexpected profile %+v", rachel)
	}
	if rachel.Provider != "elevenlabs" {
		t.Errorf("expected Provider 'elevenlabs', got %q", rachel.Provider)
	}
	if rachel.Metadata["description"] != "calm narrator" {
		t.Errorf("expected description, got %q", rachel.Metadata["description"])
	}
	if rachel.Metadata["preview_url"] != "https://example.com/rachel.mp3" {
		t.Errorf("expected preview_url, got %q", rachel.Metadata["preview_url"])
	}
	if _, ok := profiles[1].Metadata["description"]; ok {
		t.Error("expected no description key when description is empty")
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	_, err := parseVoicesResponse([]byte(`{invalid`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestListVoices_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"x1","name":"Ghost"}]}`))
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "x1" {
		t.Errorf("voices = %+v", voices)
	}
}

// ---- Account ----

func TestAccount_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"user_id": "u-1",
			"first_name": "Ada",
			"subscription": {
				"tier": "creator",
				"status": "active",
				"character_count": 1200,
				"character_limit": 100000,
				"can_extend_character_limit": true,
				"next_character_count_reset_unix": 1760000000,
				"voice_limit": 30,
				"voice_slots_used": 2,
				"professional_voice_limit": 1,
				"professional_voice_slots_used": 0,
				"billing_period": "monthly_period"
			}
		}`))
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	acct, err := p.Account(context.Background())
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.UserID != "u-1" || acct.FirstName != "Ada" {
		t.Errorf("account = %+v", acct)
	}
	sub := acct.Subscription
	if sub.CharactersRemaining() != 98800 {
		t.Errorf("CharactersRemaining = %d, want 98800", sub.CharactersRemaining())
	}
	if sub.NextCharacterCountReset.Unix() != 1760000000 {
		t.Errorf("reset = %v", sub.NextCharacterCountReset)
	}
	if !sub.CanExtendCharacterLimit || sub.BillingPeriod != "monthly_period" {
		t.Errorf("subscription = %+v", sub)
	}
}
