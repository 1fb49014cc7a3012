// Package config reads the service configuration from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"medical-voice-agent/internal/dialogue"
)

type Config struct {
	Port          string        `envconfig:"PORT" default:"8080"`
	DatabaseURL   string        `envconfig:"DATABASE_URL"`
	MigrationsURL string        `envconfig:"MIGRATIONS_URL" default:"file://migrations"`
	CatalogPath   string        `envconfig:"CATALOG_PATH"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"INFO"`
	ShutdownAfter time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	Dialogue Dialogue `envconfig:"DIALOGUE"`
	OpenAI   OpenAI   `envconfig:"OPENAI"`
	Redis    Redis    `envconfig:"REDIS"`
	AMQP     AMQP     `envconfig:"AMQP"`
	S3       S3       `envconfig:"S3"`
	Telegram Telegram `envconfig:"TELEGRAM"`
	Speech   Speech   `envconfig:"SPEECH"`
}

type Dialogue struct {
	MaxUnresolvedReplies int    `envconfig:"MAX_UNRESOLVED_REPLIES" default:"3"`
	FollowUpAffirmative  string `envconfig:"FOLLOW_UP_AFFIRMATIVE" default:"restart"`
	PhraseSeed           int64  `envconfig:"PHRASE_SEED"`
}

type OpenAI struct {
	APIKey       string        `envconfig:"API_KEY"`
	BaseURL      string        `envconfig:"BASE_URL"`
	Organization string        `envconfig:"ORGANIZATION"`
	Model        string        `envconfig:"MODEL" default:"gpt-4o-mini"`
	Temperature  float32       `envconfig:"TEMPERATURE" default:"0.2"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"20s"`
}

type Redis struct {
	Addr         string        `envconfig:"ADDR"`
	Password     string        `envconfig:"PASSWORD"`
	DB           int           `envconfig:"DB"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	RetryBackoff time.Duration `envconfig:"LOCK_RETRY_BACKOFF" default:"100ms"`
	MaxRetries   int           `envconfig:"LOCK_MAX_RETRIES" default:"50"`
}

type AMQP struct {
	URL      string `envconfig:"URL"`
	Exchange string `envconfig:"EXCHANGE" default:"medyk"`
}

type S3 struct {
	Bucket          string `envconfig:"BUCKET"`
	Region          string `envconfig:"REGION" default:"eu-central-1"`
	Prefix          string `envconfig:"PREFIX" default:"reports"`
	Endpoint        string `envconfig:"ENDPOINT"`
	AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY"`
}

type Telegram struct {
	BotToken     string `envconfig:"BOT_TOKEN"`
	DoctorChatID int64  `envconfig:"DOCTOR_CHAT_ID"`
}

type Speech struct {
	STTURL           string `envconfig:"STT_URL"`
	TTSURL           string `envconfig:"TTS_URL"`
	Language         string `envconfig:"LANGUAGE" default:"pl"`
	ElevenLabsAPIKey string `envconfig:"ELEVENLABS_API_KEY"`
	VoiceID          string `envconfig:"VOICE_ID"`
	Enabled          bool   `envconfig:"ENABLED" default:"true"`
}

// Load reads the given .env files (".env" when none are given) and then the
// environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.FollowUp(); err != nil {
		return Config{}, err
	}
	if cfg.Dialogue.MaxUnresolvedReplies < 0 {
		return Config{}, fmt.Errorf("DIALOGUE_MAX_UNRESOLVED_REPLIES must not be negative, got %d", cfg.Dialogue.MaxUnresolvedReplies)
	}
	return cfg, nil
}

// FollowUp parses DIALOGUE_FOLLOW_UP_AFFIRMATIVE.
func (c Config) FollowUp() (dialogue.FollowUpAction, error) {
	switch strings.ToLower(strings.TrimSpace(c.Dialogue.FollowUpAffirmative)) {
	case "", "restart":
		return dialogue.FollowUpRestart, nil
	case "end":
		return dialogue.FollowUpEnd, nil
	default:
		return 0, fmt.Errorf("DIALOGUE_FOLLOW_UP_AFFIRMATIVE must be restart or end, got %q", c.Dialogue.FollowUpAffirmative)
	}
}

// DialogueOptions builds the engine options. Picker and Logger are left to
// the caller.
func (c Config) DialogueOptions() dialogue.Options {
	action, _ := c.FollowUp()
	return dialogue.Options{
		MaxUnresolvedReplies:  c.Dialogue.MaxUnresolvedReplies,
		OnAffirmativeFollowUp: action,
	}
}
