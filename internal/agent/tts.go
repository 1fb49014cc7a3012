package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTTSURL     = "http://tts:8000/synthesize"
	elevenLabsAPIURL  = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsModelID = "eleven_multilingual_v2"
)

type TTSClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type TTSConfig struct {
	// URL of the local speech service. Ignored when ElevenLabsAPIKey is set.
	URL      string
	Language string

	ElevenLabsAPIKey string
	ElevenLabsURL    string
	VoiceID          string
}

// NewTTSClient prefers ElevenLabs when an API key is configured and the local
// speech service otherwise.
func NewTTSClient(cfg TTSConfig) TTSClient {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	if cfg.ElevenLabsAPIKey != "" {
		c := &elevenLabsClient{
			apiKey:     cfg.ElevenLabsAPIKey,
			baseURL:    cfg.ElevenLabsURL,
			voiceID:    cfg.VoiceID,
			httpClient: httpClient,
		}
		if c.baseURL == "" {
			c.baseURL = elevenLabsAPIURL
		}
		if c.voiceID == "" {
			c.voiceID = defaultVoiceID
		}
		return c
	}
	c := &localTTSClient{url: cfg.URL, language: cfg.Language, httpClient: httpClient}
	if c.url == "" {
		c.url = DefaultTTSURL
	}
	return c
}

type localTTSClient struct {
	url        string
	language   string
	httpClient *http.Client
}

type localTTSRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

func (c *localTTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return postForAudio(ctx, c.httpClient, c.url, localTTSRequest{Text: text, Language: c.language}, nil)
}

type elevenLabsClient struct {
	apiKey     string
	baseURL    string
	voiceID    string
	httpClient *http.Client
}

type ttsRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	} `json:"voice_settings"`
}

func (c *elevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := ttsRequest{Text: text, ModelID: elevenLabsModelID}
	reqBody.VoiceSettings.Stability = 0.5
	reqBody.VoiceSettings.SimilarityBoost = 0.75

	url := fmt.Sprintf("%s/%s", c.baseURL, c.voiceID)
	return postForAudio(ctx, c.httpClient, url, reqBody, map[string]string{"xi-api-key": c.apiKey})
}

func postForAudio(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TTS API error: %s - %s", resp.Status, string(body))
	}
	return io.ReadAll(resp.Body)
}
