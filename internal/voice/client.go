package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const (
	// DefaultVoiceID is the ElevenLabs voice used when none is configured.
	DefaultVoiceID = "EXAVITQu4vr4xnSDxMaL"

	defaultBaseURL = "https://api.elevenlabs.io"
	modelID        = "eleven_multilingual_v2"
)

// Client synthesizes coaching tips into spoken audio via the ElevenLabs
// text-to-speech API. The returned audio is MP3.
type Client struct {
	baseURL string
	apiKey  string
	voiceID string
	http    *http.Client
	logger  *zap.Logger
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewClient creates a voice client. An empty voiceID falls back to the
// default voice; an empty apiKey disables synthesis (Synthesize errors).
func NewClient(apiKey, voiceID string, logger *zap.Logger) *Client {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		voiceID: voiceID,
		http:    &http.Client{},
		logger:  logger,
	}
}

// Enabled reports whether an API key is configured. Voice synthesis is an
// optional enrichment; callers skip jobs when disabled.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Synthesize converts text to speech and returns the MP3 bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("voice synthesis disabled: no api key")
	}

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesize status %d: %s", resp.StatusCode, msg)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	c.logger.Debug("synthesized tip audio", zap.Int("bytes", len(audio)))
	return audio, nil
}
