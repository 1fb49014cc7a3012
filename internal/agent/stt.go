package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultSTTURL is the Whisper endpoint of the local speech container.
const DefaultSTTURL = "http://tts:8000/transcribe"

type STTClient interface {
	// Transcribe returns the final recognized text; partial hypotheses are
	// never surfaced.
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

type whisperClient struct {
	url      string
	language string
	http     *http.Client
}

func NewWhisperClient(url, language string) STTClient {
	if url == "" {
		url = DefaultSTTURL
	}
	return &whisperClient{url: url, language: language, http: &http.Client{Timeout: time.Minute}}
}

type transcription struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (c *whisperClient) Transcribe(ctx context.Context, audioData []byte) (string, error) {
	form, contentType, err := audioForm(audioData, c.language)
	if err != nil {
		return "", fmt.Errorf("build stt form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, form)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("stt: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// audioForm packs the recording as the "file" field, named after its sniffed
// format so the service picks the right decoder. Browsers upload webm/ogg,
// the desktop recorder sends wav.
func audioForm(audio []byte, language string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("file", "audio"+audioExt(audio))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func audioExt(audio []byte) string {
	switch http.DetectContentType(audio) {
	case "audio/wave":
		return ".wav"
	case "video/webm", "audio/webm":
		return ".webm"
	case "application/ogg", "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".wav"
	}
}
