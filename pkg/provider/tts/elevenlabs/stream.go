package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/visemetrack/pkg/provider/tts"
	"github.com/MrWong99/visemetrack/pkg/types"
)

// pcmBytesPerSample is fixed by ElevenLabs: pcm_* output is 16-bit mono.
const pcmBytesPerSample = 2

// ---- WebSocket message types ----

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// textMessage carries a text fragment. An empty Text closes the input.
type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

// wsAlignment is the chunk-relative alignment block of a stream message.
type wsAlignment struct {
	Chars            []string  `json:"chars"`
	CharStartTimesMs []float64 `json:"charStartTimesMs"`
	CharDurationsMs  []float64 `json:"charDurationsMs"`
}

// audioResponse is one JSON message received over the WebSocket.
type audioResponse struct {
	Audio               string       `json:"audio"`
	IsFinal             bool         `json:"isFinal"`
	Alignment           *wsAlignment `json:"alignment"`
	NormalizedAlignment *wsAlignment `json:"normalizedAlignment"`
	Message             string       `json:"message,omitempty"`
	Error               string       `json:"error,omitempty"`
}

// streamAssembler stitches chunk-relative alignments onto one timeline. The
// offset of each chunk is the playback length of all PCM received before it.
type streamAssembler struct {
	sampleRate int
	audio      []byte
	alignment  types.CharacterAlignment
	normalized types.CharacterAlignment
}

func (a *streamAssembler) offsetSeconds() float64 {
	return float64(len(a.audio)) / float64(pcmBytesPerSample*a.sampleRate)
}

// add appends one decoded message. The alignment is placed before the audio
// is appended so it is offset by the preceding chunks only.
func (a *streamAssembler) add(resp audioResponse) error {
	pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return fmt.Errorf("elevenlabs: stream audio: %w", err)
	}
	offset := a.offsetSeconds()
	appendAlignment(&a.alignment, resp.Alignment, offset)
	appendAlignment(&a.normalized, resp.NormalizedAlignment, offset)
	a.audio = append(a.audio, pcm...)
	return nil
}

func appendAlignment(dst *types.CharacterAlignment, src *wsAlignment, offset float64) {
	if src == nil {
		return
	}
	n := min(len(src.Chars), len(src.CharStartTimesMs), len(src.CharDurationsMs))
	for i := range n {
		start := offset + src.CharStartTimesMs[i]/1000
		dst.Characters = append(dst.Characters, src.Chars[i])
		dst.StartTimes = append(dst.StartTimes, start)
		dst.EndTimes = append(dst.EndTimes, start+src.CharDurationsMs[i]/1000)
	}
}

// synthesizeStream opens a WebSocket to ElevenLabs, sends the whole text,
// flushes, and collects audio and alignment until the final message.
func (p *Provider) synthesizeStream(ctx context.Context, req tts.Request) (*tts.Synthesis, error) {
	rate, err := pcmSampleRate(p.outputFormat)
	if err != nil {
		return nil, err
	}

	wsURL, err := buildStreamURL(p.baseURL, req.VoiceID, p.model, p.outputFormat)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	// ElevenLabs requires a non-empty first text value.
	boi := boiMessage{
		Text:          " ",
		VoiceSettings: p.settingsFor(req),
		XiAPIKey:      p.apiKey,
	}
	for _, msg := range []any{
		boi,
		textMessage{Text: req.Text + " ", TryTriggerGeneration: true},
		textMessage{Text: ""},
	} {
		if err := writeJSON(ctx, conn, msg); err != nil {
			return nil, fmt.Errorf("elevenlabs: stream send: %w", err)
		}
	}

	asm := &streamAssembler{sampleRate: rate}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, fmt.Errorf("elevenlabs: stream read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("elevenlabs: stream decode: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: stream: %s", resp.Error)
		}
		if resp.Audio != "" {
			if err := asm.add(resp); err != nil {
				return nil, err
			}
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	s := &tts.Synthesis{
		Audio:               asm.audio,
		Format:              p.outputFormat,
		Alignment:           asm.alignment,
		NormalizedAlignment: asm.normalized,
	}
	if s.TimingAlignment().IsEmpty() {
		return nil, errors.New("elevenlabs: stream carried no alignment")
	}
	return s, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// buildStreamURL constructs the stream-input WebSocket URL from the REST base.
func buildStreamURL(base, voiceID, model, format string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	q := url.Values{}
	q.Set("model_id", model)
	q.Set("output_format", format)
	q.Set("sync_alignment", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pcmSampleRate extracts the sample rate of a pcm_<rate> format.
func pcmSampleRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: websocket transport needs a pcm_* output format, got %q", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid pcm sample rate in %q", format)
	}
	return rate, nil
}
