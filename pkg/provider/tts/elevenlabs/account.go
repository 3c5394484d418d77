package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/visemetrack/pkg/provider/tts"
)

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	PreviewURL  string            `json:"preview_url"`
	Labels      map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := p.do(req, "list voices")
	if err != nil {
		return nil, err
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+3)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		if v.Description != "" {
			meta["description"] = v.Description
		}
		if v.PreviewURL != "" {
			meta["preview_url"] = v.PreviewURL
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}

// ---- Account ----

// userResponse is the response from GET /v1/user.
type userResponse struct {
	UserID       string               `json:"user_id"`
	FirstName    string               `json:"first_name"`
	Subscription subscriptionResponse `json:"subscription"`
}

type subscriptionResponse struct {
	Tier                        string `json:"tier"`
	Status                      string `json:"status"`
	CharacterCount              int    `json:"character_count"`
	CharacterLimit              int    `json:"character_limit"`
	CanExtendCharacterLimit     bool   `json:"can_extend_character_limit"`
	NextCharacterCountResetUnix int64  `json:"next_character_count_reset_unix"`
	VoiceLimit                  int    `json:"voice_limit"`
	VoiceSlotsUsed              int    `json:"voice_slots_used"`
	ProfessionalVoiceLimit      int    `json:"professional_voice_limit"`
	ProfessionalVoiceSlotsUsed  int    `json:"professional_voice_slots_used"`
	BillingPeriod               string `json:"billing_period"`
}

// Account returns the authenticated user and their subscription quota.
func (p *Provider) Account(ctx context.Context) (*tts.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: account: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := p.do(req, "account")
	if err != nil {
		return nil, err
	}
	acct, err := parseUserResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: account decode: %w", err)
	}
	return acct, nil
}

func parseUserResponse(data []byte) (*tts.Account, error) {
	var ur userResponse
	if err := json.Unmarshal(data, &ur); err != nil {
		return nil, err
	}
	sub := ur.Subscription
	acct := &tts.Account{
		UserID:    ur.UserID,
		FirstName: ur.FirstName,
		Subscription: tts.Subscription{
			Tier:                       sub.Tier,
			Status:                     sub.Status,
			CharacterLimit:             sub.CharacterLimit,
			CharacterCount:             sub.CharacterCount,
			CanExtendCharacterLimit:    sub.CanExtendCharacterLimit,
			VoiceLimit:                 sub.VoiceLimit,
			VoiceSlotsUsed:             sub.VoiceSlotsUsed,
			ProfessionalVoiceLimit:     sub.ProfessionalVoiceLimit,
			ProfessionalVoiceSlotsUsed: sub.ProfessionalVoiceSlotsUsed,
			BillingPeriod:              sub.BillingPeriod,
		},
	}
	if sub.NextCharacterCountResetUnix > 0 {
		acct.Subscription.NextCharacterCountReset = time.Unix(sub.NextCharacterCountResetUnix, 0).UTC()
	}
	return acct, nil
}
