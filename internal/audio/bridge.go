// Package audio moves call audio between Twilio, ElevenLabs and the local
// files the voice loop plays and records.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"collector-agent/internal/clock"
	"collector-agent/internal/integrations/elevenlabs"
)

const (
	DefaultLanguage = "bul"
	maxErrorBody    = 4 << 10
)

// speechAPI is the subset of the ElevenLabs client used by Bridge.
type speechAPI interface {
	TextToSpeech(ctx context.Context, text string) (io.ReadCloser, error)
	SpeechToText(ctx context.Context, audio io.Reader, filename, languageCode string) (elevenlabs.Transcription, error)
}

// StatusError is returned by Download when the media server answers with
// anything but 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("audio: download failed with status %d: %s", e.StatusCode, e.Body)
}

// Bridge synthesizes, downloads and transcribes audio files.
type Bridge struct {
	speech     speechAPI
	httpClient *http.Client
	sleep      clock.SleepFunc
	logger     *slog.Logger
}

type Option func(*Bridge)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(b *Bridge) {
		if httpClient != nil {
			b.httpClient = httpClient
		}
	}
}

func WithSleep(sleep clock.SleepFunc) Option {
	return func(b *Bridge) {
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBridge(speech speechAPI, opts ...Option) (*Bridge, error) {
	if speech == nil {
		return nil, errors.New("audio: speech client must not be nil")
	}
	b := &Bridge{
		speech:     speech,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sleep:      clock.Sleep,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Synthesize converts text to speech and replaces outPath with the result.
// On error outPath keeps its previous contents.
func (b *Bridge) Synthesize(ctx context.Context, text, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("audio: text is empty")
	}
	stream, err := b.speech.TextToSpeech(ctx, text)
	if err != nil {
		return fmt.Errorf("audio: synthesize: %w", err)
	}
	defer stream.Close()

	if err := replaceFile(outPath, stream); err != nil {
		return fmt.Errorf("audio: synthesize: %w", err)
	}
	b.logger.Info("audio synthesized", "path", outPath, "chars", len(text))
	return nil
}

// Download waits preDelay so the recording is available, then fetches url with
// basic auth. The body is written to outPath only on HTTP 200.
func (b *Bridge) Download(ctx context.Context, url, user, pass, outPath string, preDelay time.Duration) error {
	if err := b.sleep(ctx, preDelay); err != nil {
		return fmt.Errorf("audio: download delay: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("audio: build download request: %w", err)
	}
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("audio: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		b.logger.Error("recording download failed", "status", resp.StatusCode, "url", url)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := replaceFile(outPath, resp.Body); err != nil {
		return fmt.Errorf("audio: download: %w", err)
	}
	b.logger.Info("recording downloaded", "path", outPath)
	return nil
}

// Transcribe returns the text spoken in the audio file at path.
func (b *Bridge) Transcribe(ctx context.Context, path, language string) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	tr, err := b.speech.SpeechToText(ctx, f, filepath.Base(path), language)
	if err != nil {
		return "", fmt.Errorf("audio: transcribe: %w", err)
	}
	return tr.Text, nil
}

// replaceFile writes r to a temp file next to path and renames it over path,
// so readers see either the old or the new file.
func replaceFile(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
