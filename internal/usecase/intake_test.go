package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collector-agent/internal/domain"
	"collector-agent/internal/repository"
)

type fakePrimer struct {
	texts []string
	err   error
}

func (f *fakePrimer) SpeakNext(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

type fakePlacer struct {
	sid      string
	err      error
	calls    int
	to       string
	from     string
	callback string
	delay    time.Duration
}

func (f *fakePlacer) PlaceCall(_ context.Context, to, from, callbackURL string, preDelay time.Duration) (string, error) {
	f.calls++
	f.to, f.from, f.callback, f.delay = to, from, callbackURL, preDelay
	return f.sid, f.err
}

type fakeSMS struct {
	sid  string
	err  error
	to   string
	from string
	body string
}

func (f *fakeSMS) SendSMS(_ context.Context, to, from, body string) (string, error) {
	f.to, f.from, f.body = to, from, body
	return f.sid, f.err
}

type intakeFixture struct {
	svc      *IntakeService
	profiles *fakeProfiles
	primer   *fakePrimer
	placer   *fakePlacer
	sms      *fakeSMS
	dir      string
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	dir := t.TempDir()
	intro := filepath.Join(dir, "introduction.txt")
	require.NoError(t, os.WriteFile(intro, []byte("Здравейте, обаждам се във връзка с Вашия кредит."), 0o644))

	f := &intakeFixture{
		profiles: &fakeProfiles{loadErr: repository.ErrProfileNotFound},
		primer:   &fakePrimer{},
		placer:   &fakePlacer{sid: "CA77"},
		sms:      &fakeSMS{sid: "SM1"},
		dir:      dir,
	}
	svc, err := NewIntakeService(f.profiles, f.primer, f.placer, f.sms, IntakeConfig{
		PublicURL:        "https://bot.example.com",
		From:             "+15005550006",
		DefaultTo:        "+359888000111",
		IntroductionPath: intro,
		Region:           "BG",
	}, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewIntakeService_Validates(t *testing.T) {
	cfg := IntakeConfig{PublicURL: "https://x", From: "+1", IntroductionPath: "intro.txt"}
	_, err := NewIntakeService(nil, &fakePrimer{}, &fakePlacer{}, &fakeSMS{}, cfg, nil)
	require.Error(t, err)
	_, err = NewIntakeService(&fakeProfiles{}, nil, &fakePlacer{}, &fakeSMS{}, cfg, nil)
	require.Error(t, err)
	_, err = NewIntakeService(&fakeProfiles{}, &fakePrimer{}, nil, &fakeSMS{}, cfg, nil)
	require.Error(t, err)
	_, err = NewIntakeService(&fakeProfiles{}, &fakePrimer{}, &fakePlacer{}, nil, cfg, nil)
	require.Error(t, err)

	bad := cfg
	bad.From = ""
	_, err = NewIntakeService(&fakeProfiles{}, &fakePrimer{}, &fakePlacer{}, &fakeSMS{}, bad, nil)
	require.Error(t, err)

	bad = cfg
	bad.IntroductionPath = ""
	_, err = NewIntakeService(&fakeProfiles{}, &fakePrimer{}, &fakePlacer{}, &fakeSMS{}, bad, nil)
	require.Error(t, err)
}

// ---- StartCall ----

func TestStartCall_HappyPath(t *testing.T) {
	f := newIntakeFixture(t)
	origUUID, origNow := newUUID, now
	newUUID = func() string { return "debtor-123" }
	now = func() time.Time { return time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { newUUID, now = origUUID, origNow })

	got, err := f.svc.StartCall(context.Background(), domain.DebtorProfile{
		FirstName: " Ivan ",
		LastName:  "Ivanov",
		Phone:     "0888 123 456",
		Amount:    500,
	})
	require.NoError(t, err)
	require.Equal(t, CallStarted{CallSID: "CA77", DebtorID: "debtor-123"}, got)

	require.Len(t, f.profiles.saved, 1)
	saved := f.profiles.saved[0]
	require.Equal(t, "debtor-123", saved.ID)
	require.Equal(t, "Ivan", saved.FirstName)
	require.Equal(t, "+359888123456", saved.Phone)
	require.Equal(t, time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC), saved.CreatedAt)

	require.Equal(t, []string{"Здравейте, обаждам се във връзка с Вашия кредит."}, f.primer.texts)
	require.Equal(t, "+359888123456", f.placer.to)
	require.Equal(t, "+15005550006", f.placer.from)
	require.Equal(t, "https://bot.example.com/initial", f.placer.callback)
	require.Equal(t, 2*time.Second, f.placer.delay)
}

func TestStartCall_KeepsGivenID(t *testing.T) {
	f := newIntakeFixture(t)
	got, err := f.svc.StartCall(context.Background(), domain.DebtorProfile{ID: "d-9", FirstName: "Maria", Phone: "+359888123456"})
	require.NoError(t, err)
	require.Equal(t, "d-9", got.DebtorID)
}

func TestStartCall_FallsBackToDefaultNumber(t *testing.T) {
	f := newIntakeFixture(t)
	_, err := f.svc.StartCall(context.Background(), domain.DebtorProfile{FirstName: "Maria"})
	require.NoError(t, err)
	require.Equal(t, "+359888000111", f.placer.to)
	require.Equal(t, "+359888000111", f.profiles.saved[0].Phone)
}

func TestStartCall_InvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		profile domain.DebtorProfile
		reason  string
	}{
		{"no first name", domain.DebtorProfile{FirstName: "  ", Phone: "+359888123456"}, "missing_first_name"},
		{"negative amount", domain.DebtorProfile{FirstName: "Ivan", Phone: "+359888123456", Amount: -1}, "negative_value"},
		{"negative age", domain.DebtorProfile{FirstName: "Ivan", Phone: "+359888123456", Age: -3}, "negative_value"},
		{"bad phone", domain.DebtorProfile{FirstName: "Ivan", Phone: "call me"}, "invalid_phone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newIntakeFixture(t)
			_, err := f.svc.StartCall(context.Background(), tc.profile)
			requireCode(t, err, ErrorInvalidInput, tc.reason)
			require.Empty(t, f.profiles.saved)
			require.Zero(t, f.placer.calls)
		})
	}
}

func TestStartCall_MissingPhoneWithoutDefault(t *testing.T) {
	f := newIntakeFixture(t)
	f.svc.cfg.DefaultTo = ""
	_, err := f.svc.StartCall(context.Background(), domain.DebtorProfile{FirstName: "Ivan"})
	requireCode(t, err, ErrorInvalidInput, "missing_phone")
}

func TestStartCall_DownstreamFailures(t *testing.T) {
	p := domain.DebtorProfile{FirstName: "Ivan", Phone: "+359888123456", Amount: 500}

	f := newIntakeFixture(t)
	f.profiles.saveErr = errors.New("disk full")
	_, err := f.svc.StartCall(context.Background(), p)
	requireCode(t, err, ErrorInternal, "profile_save_failed")
	require.Zero(t, f.placer.calls)

	f = newIntakeFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "introduction.txt")))
	_, err = f.svc.StartCall(context.Background(), p)
	requireCode(t, err, ErrorInternal, "introduction_unavailable")
	require.Zero(t, f.placer.calls)

	f = newIntakeFixture(t)
	f.primer.err = errors.New("tts down")
	_, err = f.svc.StartCall(context.Background(), p)
	requireCode(t, err, ErrorUpstream, "synthesis_failed")
	require.Zero(t, f.placer.calls)

	f = newIntakeFixture(t)
	f.placer.err = errors.New("21215")
	_, err = f.svc.StartCall(context.Background(), p)
	requireCode(t, err, ErrorUpstream, "call_failed")
}

// ---- CallCurrent ----

func TestCallCurrent_UsesStoredProfile(t *testing.T) {
	f := newIntakeFixture(t)
	f.profiles.loadErr = nil
	f.profiles.profile = domain.DebtorProfile{ID: "d-1", FirstName: "Ivan", Phone: "+359888123456"}

	got, err := f.svc.CallCurrent(context.Background())
	require.NoError(t, err)
	require.Equal(t, CallStarted{CallSID: "CA77", DebtorID: "d-1"}, got)
	require.Equal(t, "+359888123456", f.placer.to)
	require.Empty(t, f.profiles.saved)
}

func TestCallCurrent_NoProfileDialsDefault(t *testing.T) {
	f := newIntakeFixture(t)
	got, err := f.svc.CallCurrent(context.Background())
	require.NoError(t, err)
	require.Equal(t, "CA77", got.CallSID)
	require.Equal(t, "+359888000111", f.placer.to)
}

func TestCallCurrent_LoadError(t *testing.T) {
	f := newIntakeFixture(t)
	f.profiles.loadErr = errors.New("corrupt json")
	_, err := f.svc.CallCurrent(context.Background())
	requireCode(t, err, ErrorInternal, "profile_unavailable")
}

// ---- SendSMS ----

func TestSendSMS(t *testing.T) {
	f := newIntakeFixture(t)
	sid, err := f.svc.SendSMS(context.Background(), "0888123456", "Моля, свържете се с нас.")
	require.NoError(t, err)
	require.Equal(t, "SM1", sid)
	require.Equal(t, "+359888123456", f.sms.to)
	require.Equal(t, "+15005550006", f.sms.from)
	require.Equal(t, "Моля, свържете се с нас.", f.sms.body)

	_, err = f.svc.SendSMS(context.Background(), "0888123456", " ")
	requireCode(t, err, ErrorInvalidInput, "empty_message")

	_, err = f.svc.SendSMS(context.Background(), "nope", "hi")
	requireCode(t, err, ErrorInvalidInput, "invalid_phone")

	f.sms.err = errors.New("21610")
	_, err = f.svc.SendSMS(context.Background(), "0888123456", "hi")
	requireCode(t, err, ErrorUpstream, "sms_failed")
}

func TestUpstreamError_RateLimited(t *testing.T) {
	err := upstreamError("synthesis_failed", &statusErr{code: 429})
	require.Equal(t, ErrorRateLimited, err.Code)

	err = upstreamError("synthesis_failed", &statusErr{code: 500})
	require.Equal(t, ErrorUpstream, err.Code)
}

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return "status" }
func (e *statusErr) HTTPStatusCode() int { return e.code }
