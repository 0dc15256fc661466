package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	elevenlabssdk "github.com/agentplexus/go-elevenlabs"
	elevenvoice "github.com/agentplexus/go-elevenlabs/omnivoice/tts"
	"github.com/agentplexus/omnivoice/tts"
)

const (
	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultModelID      = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"
	sttModelID          = "scribe_v1"
)

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("elevenlabs: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Voice is the fixed synthesis configuration.
type Voice struct {
	VoiceID      string
	ModelID      string
	OutputFormat string
}

// Transcription is the subset of the speech-to-text response we use.
type Transcription struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

// synthesizer is the part of the SDK's omnivoice TTS provider we use.
type synthesizer interface {
	Synthesize(ctx context.Context, text string, config tts.SynthesisConfig) (*tts.SynthesisResult, error)
}

// Client synthesizes speech through the go-elevenlabs SDK and transcribes
// through the speech-to-text REST endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	voice      Voice
	tts        synthesizer
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for apiKey. Voice ID is required; model and
// output format fall back to multilingual v2 and 128 kbps MP3.
func NewClient(apiKey string, voice Voice, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key must not be empty")
	}
	sdk, err := elevenlabssdk.NewClient(elevenlabssdk.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create sdk client: %w", err)
	}
	return newClient(apiKey, voice, elevenvoice.NewWithClient(sdk), opts...)
}

func newClient(apiKey string, voice Voice, synth synthesizer, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key must not be empty")
	}
	if synth == nil {
		return nil, errors.New("elevenlabs: synthesizer must not be nil")
	}
	if strings.TrimSpace(voice.VoiceID) == "" {
		return nil, errors.New("elevenlabs: voice id must not be empty")
	}
	if voice.ModelID == "" {
		voice.ModelID = defaultModelID
	}
	if voice.OutputFormat == "" {
		voice.OutputFormat = defaultOutputFormat
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		voice:      voice,
		tts:        synth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base
}

func sttURL(base string) string {
	return base + "/v1/speech-to-text"
}

// TextToSpeech returns the synthesized audio. The caller must close it.
func (c *Client) TextToSpeech(ctx context.Context, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	res, err := c.tts.Synthesize(ctx, text, tts.SynthesisConfig{
		VoiceID:      c.voice.VoiceID,
		Model:        c.voice.ModelID,
		OutputFormat: c.voice.OutputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: tts request failed: %w", err)
	}
	if res == nil || len(res.Audio) == 0 {
		return nil, errors.New("elevenlabs: tts returned no audio")
	}
	return io.NopCloser(bytes.NewReader(res.Audio)), nil
}

// SpeechToText uploads audio for transcription with speaker diarization and
// audio-event tagging enabled.
func (c *Client) SpeechToText(ctx context.Context, audio io.Reader, filename, languageCode string) (Transcription, error) {
	if audio == nil {
		return Transcription{}, errors.New("elevenlabs: audio must not be nil")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"model_id":         sttModelID,
		"tag_audio_events": "true",
		"diarize":          "true",
	}
	if languageCode != "" {
		fields["language_code"] = languageCode
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Transcription{}, fmt.Errorf("elevenlabs: write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Transcription{}, fmt.Errorf("elevenlabs: create file part: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return Transcription{}, fmt.Errorf("elevenlabs: copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, fmt.Errorf("elevenlabs: close multipart: %w", err)
	}

	u := sttURL(c.base())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return Transcription{}, fmt.Errorf("elevenlabs: create stt request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	res, err := c.do(req, u)
	if err != nil {
		return Transcription{}, fmt.Errorf("elevenlabs: stt request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var out Transcription
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return Transcription{}, fmt.Errorf("elevenlabs: decode stt response: %w", err)
	}
	return out, nil
}

// do sends req with the API key and converts non-2xx responses to
// *HTTPStatusError. On success the body is left open for the caller.
func (c *Client) do(req *http.Request, u string) (*http.Response, error) {
	req.Header.Set("xi-api-key", c.apiKey)

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	return res, nil
}
