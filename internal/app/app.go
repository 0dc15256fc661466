// Package app wires configuration into the services shared by the HTTP server
// and the Lambda entrypoint.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"collector-agent/handler"
	"collector-agent/internal/audio"
	"collector-agent/internal/callcontrol"
	"collector-agent/internal/config"
	"collector-agent/internal/integrations/azureopenai"
	"collector-agent/internal/integrations/elevenlabs"
	"collector-agent/internal/integrations/paramstore"
	"collector-agent/internal/integrations/twilio"
	"collector-agent/internal/repository"
	"collector-agent/internal/usecase"
)

type App struct {
	Handler      *handler.Handler
	Conversation *usecase.ConversationService
	Intake       *usecase.IntakeService
}

// NewLogger returns a JSON logger at the named level; unknown levels fall
// back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// New builds every service from cfg. AWS is only contacted when a parameter
// prefix or a state table is configured.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	// ---- Secrets ----
	if cfg.ParamPrefix != "" {
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		store, err := paramstore.New(awsssm.NewFromConfig(ac), cfg.ParamPrefix)
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveSecrets(ctx, store); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// ---- Storage ----
	var (
		profiles usecase.ProfileStore
		turns    usecase.TurnWriter
		lister   handler.TurnLister
	)
	if cfg.StateTable != "" {
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		state, err := repository.New(awsdynamodb.NewFromConfig(ac), cfg.StateTable)
		if err != nil {
			return nil, err
		}
		profiles, turns, lister = state, state, state
	} else {
		fs, err := repository.NewFileStore(cfg.Files.Profile)
		if err != nil {
			return nil, err
		}
		profiles = fs
	}

	// ---- Vendors ----
	speech, err := elevenlabs.NewClient(cfg.ElevenLabs.APIKey, elevenlabs.Voice{
		VoiceID:      cfg.ElevenLabs.VoiceID,
		ModelID:      cfg.ElevenLabs.ModelID,
		OutputFormat: cfg.ElevenLabs.OutputFormat,
	})
	if err != nil {
		return nil, err
	}
	bridge, err := audio.NewBridge(speech, audio.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	tw, err := twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	if err != nil {
		return nil, err
	}
	completer := azureopenai.NewClient(azureopenai.Config{
		APIKey:     cfg.AzureOpenAI.APIKey,
		Endpoint:   cfg.AzureOpenAI.Endpoint,
		Deployment: cfg.AzureOpenAI.Deployment,
		APIVersion: cfg.AzureOpenAI.APIVersion,
	},
		azureopenai.WithMaxRetries(cfg.CompletionMaxRetries),
		azureopenai.WithBaseDelay(cfg.CompletionBaseDelay),
		azureopenai.WithLogger(logger),
	)
	if !completer.Configured() {
		logger.Warn("azure openai credentials not configured; turns will replay the previous audio")
	}
	controller, err := callcontrol.NewController(tw,
		callcontrol.WithLogger(logger),
		callcontrol.WithRegion(cfg.Twilio.Region),
		callcontrol.WithStatusCallback(cfg.PublicURL+"/call-status"),
	)
	if err != nil {
		return nil, err
	}

	// ---- Use cases ----
	user, pass := tw.Credentials()
	conv, err := usecase.NewConversationService(tw, bridge, completer, profiles, turns, usecase.ConversationConfig{
		PublicURL:        cfg.PublicURL,
		AudioPath:        cfg.Files.Audio,
		RecordingPath:    cfg.Files.Recording,
		InstructionsPath: cfg.Files.Instructions,
		Language:         cfg.ElevenLabs.STTLanguage,
		DownloadUser:     user,
		DownloadPass:     pass,
	}, logger)
	if err != nil {
		return nil, err
	}
	intake, err := usecase.NewIntakeService(profiles, conv, controller, tw, usecase.IntakeConfig{
		PublicURL:        cfg.PublicURL,
		From:             cfg.Twilio.From,
		DefaultTo:        cfg.Twilio.To,
		IntroductionPath: cfg.Files.Introduction,
		Region:           cfg.Twilio.Region,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.OperatorToken == "" {
		logger.Warn("OPERATOR_TOKEN not set; operator API disabled")
	}
	h, err := handler.NewHandler(conv, intake, lister, logger, handler.WithOperatorToken(cfg.OperatorToken))
	if err != nil {
		return nil, err
	}
	return &App{Handler: h, Conversation: conv, Intake: intake}, nil
}
