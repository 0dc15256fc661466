package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"collector-agent/internal/callcontrol"
	"collector-agent/internal/domain"
	"collector-agent/internal/repository"
)

type ProfileStore interface {
	LoadProfile(ctx context.Context) (domain.DebtorProfile, error)
	SaveProfile(ctx context.Context, p domain.DebtorProfile) error
}

// AudioPrimer replaces the audio played when the next call connects.
type AudioPrimer interface {
	SpeakNext(ctx context.Context, text string) error
}

type CallPlacer interface {
	PlaceCall(ctx context.Context, to, from, callbackURL string, preDelay time.Duration) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, from, body string) (string, error)
}

type IntakeConfig struct {
	PublicURL        string
	From             string
	DefaultTo        string
	IntroductionPath string
	Region           string
	PreDelay         time.Duration
}

// CallStarted is returned once the provider has accepted the call.
type CallStarted struct {
	CallSID  string `json:"callSid"`
	DebtorID string `json:"debtorId"`
}

// IntakeService registers debtors and starts calls to them.
type IntakeService struct {
	profiles ProfileStore
	primer   AudioPrimer
	calls    CallPlacer
	sms      SMSSender
	cfg      IntakeConfig
	logger   *slog.Logger
}

func NewIntakeService(profiles ProfileStore, primer AudioPrimer, calls CallPlacer, sms SMSSender, cfg IntakeConfig, logger *slog.Logger) (*IntakeService, error) {
	if profiles == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	if primer == nil {
		return nil, errors.New("usecase: audio primer must not be nil")
	}
	if calls == nil {
		return nil, errors.New("usecase: call placer must not be nil")
	}
	if sms == nil {
		return nil, errors.New("usecase: sms sender must not be nil")
	}
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if cfg.PublicURL == "" || cfg.From == "" {
		return nil, errors.New("usecase: public url and from number are required")
	}
	if cfg.IntroductionPath == "" {
		return nil, errors.New("usecase: introduction path is required")
	}
	if cfg.PreDelay <= 0 {
		cfg.PreDelay = callcontrol.DefaultPreDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{
		profiles: profiles,
		primer:   primer,
		calls:    calls,
		sms:      sms,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// StartCall stores p as the current debtor and calls them.
func (s *IntakeService) StartCall(ctx context.Context, p domain.DebtorProfile) (CallStarted, error) {
	p, err := s.normalize(p)
	if err != nil {
		return CallStarted{}, err
	}
	if err := s.profiles.SaveProfile(ctx, p); err != nil {
		return CallStarted{}, newError(ErrorInternal, "profile_save_failed", err)
	}
	s.logger.Info("debtor registered", "debtorId", p.ID)
	return s.dial(ctx, p)
}

// CallCurrent calls the stored debtor, or the default number when nobody has
// been registered.
func (s *IntakeService) CallCurrent(ctx context.Context) (CallStarted, error) {
	p, err := s.profiles.LoadProfile(ctx)
	if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
		return CallStarted{}, newError(ErrorInternal, "profile_unavailable", err)
	}
	return s.dial(ctx, p)
}

// SendSMS texts message to the given number from the configured sender.
func (s *IntakeService) SendSMS(ctx context.Context, to, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", newError(ErrorInvalidInput, "empty_message", nil)
	}
	normalized, err := callcontrol.NormalizeNumber(to, s.cfg.Region)
	if err != nil {
		return "", newError(ErrorInvalidInput, "invalid_phone", err)
	}
	sid, err := s.sms.SendSMS(ctx, normalized, s.cfg.From, message)
	if err != nil {
		return "", newError(ErrorUpstream, "sms_failed", err)
	}
	s.logger.Info("sms sent", "messageSid", sid, "to", normalized)
	return sid, nil
}

func (s *IntakeService) dial(ctx context.Context, p domain.DebtorProfile) (CallStarted, error) {
	to := p.Phone
	if to == "" {
		to = s.cfg.DefaultTo
	}
	if to == "" {
		return CallStarted{}, newError(ErrorInvalidInput, "missing_phone", nil)
	}

	intro, err := os.ReadFile(s.cfg.IntroductionPath)
	if err != nil {
		return CallStarted{}, newError(ErrorInternal, "introduction_unavailable", err)
	}
	if err := s.primer.SpeakNext(ctx, string(intro)); err != nil {
		return CallStarted{}, upstreamError("synthesis_failed", err)
	}

	sid, err := s.calls.PlaceCall(ctx, to, s.cfg.From, s.cfg.PublicURL+"/initial", s.cfg.PreDelay)
	if err != nil {
		return CallStarted{}, newError(ErrorUpstream, "call_failed", err)
	}
	return CallStarted{CallSID: sid, DebtorID: p.ID}, nil
}

func (s *IntakeService) normalize(p domain.DebtorProfile) (domain.DebtorProfile, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return p, newError(ErrorInvalidInput, "missing_first_name", nil)
	}
	if p.Amount < 0 || p.Income < 0 || p.Age < 0 {
		return p, newError(ErrorInvalidInput, "negative_value", nil)
	}

	phone := strings.TrimSpace(p.Phone)
	if phone == "" {
		phone = s.cfg.DefaultTo
	}
	if phone == "" {
		return p, newError(ErrorInvalidInput, "missing_phone", nil)
	}
	normalized, err := callcontrol.NormalizeNumber(phone, s.cfg.Region)
	if err != nil {
		return p, newError(ErrorInvalidInput, "invalid_phone", err)
	}
	p.Phone = normalized

	if p.ID == "" {
		p.ID = newUUID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now().UTC()
	}
	return p, nil
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = time.Now
