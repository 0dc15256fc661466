package azureopenai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"collector-agent/internal/clock"
)

const (
	defaultDeployment = "gpt-4o"
	defaultMaxRetries = 3
	defaultBaseDelay  = 60 * time.Second
)

var (
	// ErrNotConfigured is returned without any attempt when the key or
	// endpoint is missing.
	ErrNotConfigured = errors.New("azure openai credentials not configured")
	// ErrRetriesExhausted is returned once every attempt has failed.
	ErrRetriesExhausted = errors.New("failed after multiple attempts")
)

// chatAPI is the part of *openai.Client used here.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the Azure OpenAI connection settings.
type Config struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// Completion is a successful model reply.
type Completion struct {
	Content        string
	ProcessingTime time.Duration
}

// ProcessingTimeText renders the elapsed time as "1.23 seconds".
func (c Completion) ProcessingTimeText() string {
	return fmt.Sprintf("%.2f seconds", c.ProcessingTime.Seconds())
}

// Client sends a persona prompt and one utterance to a chat deployment,
// retrying failed calls with exponential backoff.
type Client struct {
	api         chatAPI
	deployment  string
	maxRetries  int
	baseDelay   time.Duration
	temperature float32
	httpClient  *http.Client
	sleep       clock.SleepFunc
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Client)

// WithMaxRetries sets the total number of attempts. Non-positive values are ignored.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; attempt i waits base*2^i.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

func WithSleep(sleep clock.SleepFunc) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a Client. Missing credentials do not fail construction;
// Complete reports them as ErrNotConfigured instead.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		deployment: strings.TrimSpace(cfg.Deployment),
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		sleep:      clock.Sleep,
		now:        time.Now,
		logger:     slog.Default(),
	}
	if c.deployment == "" {
		c.deployment = defaultDeployment
	}
	for _, opt := range opts {
		opt(c)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if apiKey == "" || endpoint == "" {
		return c
	}

	c.logger.Info("initializing azure openai client", "endpoint", endpoint, "deployment", c.deployment)
	oaCfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if cfg.APIVersion != "" {
		oaCfg.APIVersion = cfg.APIVersion
	}
	deployment := c.deployment
	oaCfg.AzureModelMapperFunc = func(string) string { return deployment }
	if c.httpClient != nil {
		oaCfg.HTTPClient = c.httpClient
	}
	c.api = openai.NewClientWithConfig(oaCfg)
	return c
}

// Configured reports whether credentials were supplied.
func (c *Client) Configured() bool {
	return c.api != nil
}

// Complete asks the model to answer text under systemPrompt.
func (c *Client) Complete(ctx context.Context, text, systemPrompt string) (Completion, error) {
	if c.api == nil {
		c.logger.Error("missing azure openai credentials, check environment variables")
		return Completion{}, ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model:       c.deployment,
		Messages:    buildMessages(systemPrompt, text),
		Temperature: wireTemperature(c.temperature),
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		c.logger.Info("completion attempt", "attempt", attempt+1, "max_attempts", c.maxRetries)

		start := c.now()
		content, err := c.createOnce(ctx, req)
		if err == nil {
			out := Completion{Content: content, ProcessingTime: c.now().Sub(start)}
			c.logger.Info("completion succeeded", "processing_time", out.ProcessingTimeText())
			return out, nil
		}
		lastErr = err
		c.logger.Error("completion attempt failed", "attempt", attempt+1, "err", err)

		if attempt < c.maxRetries-1 {
			backoff := backoffDelay(c.baseDelay, attempt)
			c.logger.Info("retrying completion", "backoff", backoff)
			if err := c.sleep(ctx, backoff); err != nil {
				return Completion{}, fmt.Errorf("azureopenai: backoff interrupted: %w", err)
			}
		}
	}

	c.logger.Error("all completion attempts failed", "attempts", c.maxRetries)
	return Completion{}, fmt.Errorf("azureopenai: %w: %w", ErrRetriesExhausted, lastErr)
}

func (c *Client) createOnce(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("azureopenai: request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("azureopenai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// backoffDelay returns base*2^attempt, saturating at the largest Duration.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt >= 62 || base > math.MaxInt64>>uint(attempt) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(attempt)
}

func buildMessages(systemPrompt, text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}

// wireTemperature keeps an explicit zero on the wire; go-openai drops zero
// floats through omitempty and the service default is 1.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
