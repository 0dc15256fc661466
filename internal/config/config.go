// Package config reads process configuration. It is the only place that
// touches environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"collector-agent/internal/integrations/paramstore"
)

const (
	defaultPort             = "8888"
	defaultAudioFile        = "current_response.mp3"
	defaultRecordingFile    = "recorded.mp3"
	defaultInstructionsFile = "instructions.txt"
	defaultIntroFile        = "introduction.txt"
	defaultProfileFile      = "info.json"
	defaultMaxRetries       = 3
	maxCompletionRetries    = 10
	defaultBaseDelay        = 60 * time.Second
)

type AzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

type ElevenLabs struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	STTLanguage  string
}

type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	Region     string
}

type Files struct {
	Audio        string
	Recording    string
	Instructions string
	Introduction string
	Profile      string
}

type Config struct {
	AzureOpenAI AzureOpenAI
	ElevenLabs  ElevenLabs
	Twilio      Twilio
	Files       Files

	PublicURL   string
	Port        string
	LogLevel    string
	StateTable  string
	ParamPrefix string

	// OperatorToken guards the operator API; empty disables it.
	OperatorToken string

	CompletionMaxRetries int
	CompletionBaseDelay  time.Duration
	CallOnStart          bool
}

// LoadDotEnv loads variables from path into the process environment when the
// file exists. Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from getenv. Malformed numeric values are errors;
// absent ones take defaults.
func Load(getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		AzureOpenAI: AzureOpenAI{
			APIKey:     env("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   env("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: env("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: env("AZURE_OPENAI_API_VERSION", ""),
		},
		ElevenLabs: ElevenLabs{
			APIKey:       env("ELEVENLABS_API_KEY", ""),
			VoiceID:      env("VOICE_ID", ""),
			ModelID:      env("MODEL_ID", ""),
			OutputFormat: env("OUTPUT_FORMAT", ""),
			STTLanguage:  env("STT_LANGUAGE", "bul"),
		},
		Twilio: Twilio{
			AccountSID: env("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  env("TWILIO_AUTH_TOKEN", ""),
			From:       env("FROM_", ""),
			To:         env("TO", ""),
			Region:     env("PHONE_REGION", "BG"),
		},
		Files: Files{
			Audio:        env("AUDIO_FILE", defaultAudioFile),
			Recording:    env("RECORDING_FILE", defaultRecordingFile),
			Instructions: env("INSTRUCTIONS_FILE", defaultInstructionsFile),
			Introduction: env("INTRODUCTION_FILE", defaultIntroFile),
			Profile:      env("PROFILE_FILE", defaultProfileFile),
		},
		PublicURL:   strings.TrimRight(env("URL", ""), "/"),
		Port:        env("PORT", defaultPort),
		LogLevel:    env("LOG_LEVEL", "info"),
		StateTable:  env("STATE_TABLE", ""),
		ParamPrefix: env("PARAM_PREFIX", ""),

		OperatorToken: env("OPERATOR_TOKEN", ""),
	}

	var err error
	if cfg.CompletionMaxRetries, err = envInt(env("COMPLETION_MAX_RETRIES", ""), defaultMaxRetries); err != nil {
		return Config{}, fmt.Errorf("config: COMPLETION_MAX_RETRIES: %w", err)
	}
	if cfg.CompletionMaxRetries < 1 || cfg.CompletionMaxRetries > maxCompletionRetries {
		return Config{}, fmt.Errorf("config: COMPLETION_MAX_RETRIES must be between 1 and %d", maxCompletionRetries)
	}
	if cfg.CompletionBaseDelay, err = envDelay(env("COMPLETION_BASE_DELAY", ""), defaultBaseDelay); err != nil {
		return Config{}, fmt.Errorf("config: COMPLETION_BASE_DELAY: %w", err)
	}
	if cfg.CallOnStart, err = envBool(env("CALL_ON_START", ""), false); err != nil {
		return Config{}, fmt.Errorf("config: CALL_ON_START: %w", err)
	}
	return cfg, nil
}

type tokenSource interface {
	Token(ctx context.Context, key string) (string, error)
}

// ResolveSecrets fills credentials left empty by the environment from the
// parameter store.
func (c *Config) ResolveSecrets(ctx context.Context, src tokenSource) error {
	if src == nil {
		return errors.New("config: token source must not be nil")
	}
	targets := []struct {
		key string
		dst *string
	}{
		{paramstore.AzureOpenAIKey, &c.AzureOpenAI.APIKey},
		{paramstore.ElevenLabsKey, &c.ElevenLabs.APIKey},
		{paramstore.TwilioAuthToken, &c.Twilio.AuthToken},
		{paramstore.OperatorToken, &c.OperatorToken},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := src.Token(ctx, t.key)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", t.key, err)
		}
		*t.dst = v
	}
	return nil
}

// Validate reports the settings without which no call can be placed.
// The Azure OpenAI credentials are optional: without them every turn fails
// with a not-configured error and the caller hears the previous audio.
func (c Config) Validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"ELEVENLABS_API_KEY", c.ElevenLabs.APIKey},
		{"VOICE_ID", c.ElevenLabs.VoiceID},
		{"TWILIO_ACCOUNT_SID", c.Twilio.AccountSID},
		{"TWILIO_AUTH_TOKEN", c.Twilio.AuthToken},
		{"FROM_", c.Twilio.From},
		{"URL", c.PublicURL},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.CallOnStart && c.Twilio.To == "" {
		return errors.New("config: CALL_ON_START requires TO")
	}
	return nil
}

func envInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// envDelay accepts a Go duration ("90s") or a bare number of seconds ("60").
func envDelay(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, errors.New("must not be negative")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

func envBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}
