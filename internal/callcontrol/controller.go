// Package callcontrol places the outbound calls that start a conversation.
package callcontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"collector-agent/internal/clock"
	"collector-agent/internal/integrations/twilio"
)

const DefaultPreDelay = 2 * time.Second

type dialer interface {
	CreateCall(ctx context.Context, req twilio.CallRequest) (string, error)
}

type Controller struct {
	dialer         dialer
	sleep          clock.SleepFunc
	logger         *slog.Logger
	region         string
	statusCallback string
}

type Option func(*Controller)

func WithSleep(sleep clock.SleepFunc) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegion sets the region used to parse numbers without a country code.
func WithRegion(region string) Option {
	return func(c *Controller) {
		if region != "" {
			c.region = strings.ToUpper(region)
		}
	}
}

// WithStatusCallback asks Twilio to report call completion to url.
func WithStatusCallback(url string) Option {
	return func(c *Controller) {
		c.statusCallback = url
	}
}

func NewController(d dialer, opts ...Option) (*Controller, error) {
	if d == nil {
		return nil, errors.New("callcontrol: dialer must not be nil")
	}
	c := &Controller{
		dialer: d,
		sleep:  clock.Sleep,
		logger: slog.Default(),
		region: DefaultRegion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PlaceCall waits preDelay, then dials to from from. Twilio requests
// callbackURL for call-flow instructions once the call connects.
func (c *Controller) PlaceCall(ctx context.Context, to, from, callbackURL string, preDelay time.Duration) (string, error) {
	toE164, err := NormalizeNumber(to, c.region)
	if err != nil {
		return "", err
	}
	fromE164, err := NormalizeNumber(from, c.region)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(callbackURL) == "" {
		return "", errors.New("callcontrol: callback url is required")
	}

	if err := c.sleep(ctx, preDelay); err != nil {
		return "", fmt.Errorf("callcontrol: pre-call delay: %w", err)
	}

	sid, err := c.dialer.CreateCall(ctx, twilio.CallRequest{
		To:             toE164,
		From:           fromE164,
		URL:            callbackURL,
		StatusCallback: c.statusCallback,
	})
	if err != nil {
		c.logger.Error("call failed", "to", toE164, "err", err)
		return "", err
	}

	c.logger.Info("call started", "callSid", sid, "to", toE164)
	return sid, nil
}
