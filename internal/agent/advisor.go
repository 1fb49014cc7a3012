package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"medical-voice-agent/internal/dialogue"
	"medical-voice-agent/internal/platform/logger"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 20 * time.Second
)

// The user prompt comes from the catalog and already asks for a two-sentence
// answer; these system lines go before and after it.
const (
	advisorIntro    = "Odpowiedź od chatbota odnośnie zaleceń do twoich objawów."
	advisorReminder = "Nadal zaleca się skontaktować z lekarzem pierwszego kontaktu."
)

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
	Temperature  float32
	// Timeout bounds one completion call; it should stay below the
	// consultation lock TTL.
	Timeout time.Duration
}

var _ dialogue.Advisor = (*OpenAIAdvisor)(nil)

// OpenAIAdvisor answers the free-text fallback question with a chat
// completion.
type OpenAIAdvisor struct {
	client      *openai.Client
	model       string
	temperature float32
	log         zerolog.Logger
}

func NewOpenAIAdvisor(cfg OpenAIConfig) *OpenAIAdvisor {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.OrgID = cfg.Organization
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIAdvisor{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: cfg.Temperature,
		log:         logger.NewLogger("advisor"),
	}
}

// Ask never returns an error: a failed call becomes the reply text so the
// conversation can go on.
func (a *OpenAIAdvisor) Ask(ctx context.Context, prompt string) string {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: advisorIntro},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
			{Role: openai.ChatMessageRoleSystem, Content: advisorReminder},
		},
		Temperature: a.temperature,
	})
	if err != nil {
		a.log.Error().Err(err).Str("model", a.model).Msg("chat completion failed")
		return fmt.Sprintf("Błąd podczas komunikacji z API: %v", err)
	}
	if len(resp.Choices) == 0 {
		a.log.Warn().Str("model", a.model).Msg("chat completion returned no choices")
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

// NoAdvisor is used when no API key is configured. Its empty replies make the
// dialogue fall back to the catalog's no-diagnosis message.
func NoAdvisor() dialogue.Advisor {
	return dialogue.AdvisorFunc(func(context.Context, string) string { return "" })
}
