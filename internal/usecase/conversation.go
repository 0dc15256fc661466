package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"collector-agent/internal/domain"
	"collector-agent/internal/integrations/azureopenai"
	"collector-agent/internal/repository"
)

const (
	recordMaxLength      = 10
	recordingAction      = "/handle-recording"
	defaultDownloadDelay = 2 * time.Second

	turnStatusComplete = "complete"
	turnStatusFailed   = "failed"
)

type RecordingLocator interface {
	RecordingMediaURL(ctx context.Context, recordingSID string) (string, error)
}

type AudioBridge interface {
	Synthesize(ctx context.Context, text, outPath string) error
	Download(ctx context.Context, url, user, pass, outPath string, preDelay time.Duration) error
	Transcribe(ctx context.Context, path, language string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, text, systemPrompt string) (azureopenai.Completion, error)
}

type ProfileReader interface {
	LoadProfile(ctx context.Context) (domain.DebtorProfile, error)
}

type TurnWriter interface {
	SaveTurn(ctx context.Context, turn domain.Turn) error
}

// Instructions tell the telephony provider what to do next on a call.
type Instructions struct {
	AudioURL     string
	RecordAction string
	MaxLength    int
}

type RecordingInput struct {
	CallSID      string
	RecordingSID string
}

// TurnOutcome describes a completed turn.
type TurnOutcome struct {
	Transcript     string
	Reply          string
	ProcessingTime string
}

type ConversationConfig struct {
	PublicURL        string
	AudioPath        string
	RecordingPath    string
	InstructionsPath string
	Language         string
	DownloadUser     string
	DownloadPass     string
	DownloadDelay    time.Duration
}

// ConversationService runs the play/record/reply loop of every call.
// The audio file is shared by all calls, so at most one turn runs at a time.
type ConversationService struct {
	recordings RecordingLocator
	audio      AudioBridge
	completer  Completer
	profiles   ProfileReader
	turns      TurnWriter
	cfg        ConversationConfig
	logger     *slog.Logger

	stateMu sync.Mutex
	states  map[string]domain.CallState

	audioMu sync.Mutex
}

// NewConversationService wires the turn pipeline. turns may be nil when no
// archive is configured.
func NewConversationService(rec RecordingLocator, audio AudioBridge, completer Completer, profiles ProfileReader, turns TurnWriter, cfg ConversationConfig, logger *slog.Logger) (*ConversationService, error) {
	if rec == nil {
		return nil, errors.New("usecase: recording locator must not be nil")
	}
	if audio == nil {
		return nil, errors.New("usecase: audio bridge must not be nil")
	}
	if completer == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if profiles == nil {
		return nil, errors.New("usecase: profile reader must not be nil")
	}
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if cfg.PublicURL == "" {
		return nil, errors.New("usecase: public url must not be empty")
	}
	if cfg.AudioPath == "" || cfg.RecordingPath == "" || cfg.InstructionsPath == "" {
		return nil, errors.New("usecase: audio, recording and instructions paths are required")
	}
	if cfg.DownloadDelay <= 0 {
		cfg.DownloadDelay = defaultDownloadDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		recordings: rec,
		audio:      audio,
		completer:  completer,
		profiles:   profiles,
		turns:      turns,
		cfg:        cfg,
		logger:     logger,
		states:     make(map[string]domain.CallState),
	}, nil
}

// Initial answers the first webhook of a call.
func (s *ConversationService) Initial(_ context.Context, callSID string) Instructions {
	s.setState(callSID, domain.CallAwaitingRecording)
	s.logger.Info("call connected", "callSid", callSID)
	return s.playAndRecord()
}

// HandleRecording processes the caller's reply when there is one and always
// answers with play + record. Failures are logged; the caller then hears the
// previous audio again.
func (s *ConversationService) HandleRecording(ctx context.Context, in RecordingInput) Instructions {
	out, err := s.ProcessRecording(ctx, in)
	if err != nil {
		var ue *Error
		if errors.As(err, &ue) {
			s.logger.Error("turn failed", "callSid", in.CallSID, "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
		} else {
			s.logger.Error("turn failed", "callSid", in.CallSID, "err", err)
		}
		return s.playAndRecord()
	}
	s.logger.Info("turn completed",
		"callSid", in.CallSID,
		"transcriptChars", len(out.Transcript),
		"replyChars", len(out.Reply),
		"processingTime", out.ProcessingTime,
	)
	return s.playAndRecord()
}

// ProcessRecording runs one turn. Errors are *Error.
func (s *ConversationService) ProcessRecording(ctx context.Context, in RecordingInput) (TurnOutcome, error) {
	recordingSID := strings.TrimSpace(in.RecordingSID)
	if recordingSID == "" {
		return TurnOutcome{}, newError(ErrorInvalidInput, "missing_recording_sid", nil)
	}
	if !s.beginTurn(in.CallSID) {
		return TurnOutcome{}, newError(ErrorTurnInProgress, "turn_in_progress", nil)
	}
	defer s.finishTurn(in.CallSID)

	s.audioMu.Lock()
	defer s.audioMu.Unlock()

	out, err := s.runTurn(ctx, recordingSID)
	s.archive(ctx, in, out, err)
	if err != nil {
		return TurnOutcome{}, err
	}
	return out, nil
}

// SpeakNext replaces the audio the next play instruction serves.
func (s *ConversationService) SpeakNext(ctx context.Context, text string) error {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return s.audio.Synthesize(ctx, text, s.cfg.AudioPath)
}

// Hangup forgets a finished call.
func (s *ConversationService) Hangup(callSID string) {
	s.stateMu.Lock()
	delete(s.states, callSID)
	s.stateMu.Unlock()
	s.logger.Info("call ended", "callSid", callSID)
}

// State reports the tracked state of a call.
func (s *ConversationService) State(callSID string) (domain.CallState, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st, ok := s.states[callSID]
	return st, ok
}

// AudioPath is the file served to the provider's play instruction.
func (s *ConversationService) AudioPath() string {
	return s.cfg.AudioPath
}

func (s *ConversationService) runTurn(ctx context.Context, recordingSID string) (TurnOutcome, *Error) {
	mediaURL, err := s.recordings.RecordingMediaURL(ctx, recordingSID)
	if err != nil {
		return TurnOutcome{}, newError(ErrorUpstream, "recording_lookup_failed", err)
	}
	if err := s.audio.Download(ctx, mediaURL, s.cfg.DownloadUser, s.cfg.DownloadPass, s.cfg.RecordingPath, s.cfg.DownloadDelay); err != nil {
		return TurnOutcome{}, newError(ErrorUpstream, "download_failed", err)
	}

	transcript, err := s.audio.Transcribe(ctx, s.cfg.RecordingPath, s.cfg.Language)
	if err != nil {
		return TurnOutcome{}, upstreamError("transcription_failed", err)
	}
	out := TurnOutcome{Transcript: transcript}
	if strings.TrimSpace(transcript) == "" {
		return out, newError(ErrorInvalidInput, "empty_transcript", nil)
	}

	persona, err := os.ReadFile(s.cfg.InstructionsPath)
	if err != nil {
		return out, newError(ErrorInternal, "persona_unavailable", err)
	}
	profile, err := s.profiles.LoadProfile(ctx)
	if err != nil {
		return out, newError(ErrorInternal, "profile_unavailable", err)
	}

	completion, err := s.completer.Complete(ctx, transcript, buildSystemPrompt(string(persona), profile))
	if err != nil {
		return out, newError(ErrorUpstream, "completion_failed", err)
	}
	out.Reply = completion.Content
	out.ProcessingTime = completion.ProcessingTimeText()

	if err := s.audio.Synthesize(ctx, completion.Content, s.cfg.AudioPath); err != nil {
		return out, upstreamError("synthesis_failed", err)
	}
	return out, nil
}

func (s *ConversationService) archive(ctx context.Context, in RecordingInput, out TurnOutcome, turnErr *Error) {
	if s.turns == nil {
		return
	}
	status := turnStatusComplete
	if turnErr != nil {
		status = fmt.Sprintf("%s:%s", turnStatusFailed, turnErr.Reason)
	}
	turn := newTurn(in.CallSID, in.RecordingSID, out.Transcript, out.Reply, status)
	if err := s.turns.SaveTurn(ctx, turn); err != nil {
		s.logger.Warn("turn archive failed", "callSid", in.CallSID, "err", err)
	}
}

// beginTurn marks callSID as processing. Calls without a SID are not tracked.
func (s *ConversationService) beginTurn(callSID string) bool {
	if callSID == "" {
		return true
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.states[callSID] == domain.CallProcessingReply {
		return false
	}
	s.states[callSID] = domain.CallProcessingReply
	return true
}

// finishTurn returns a processing call to awaiting-recording. A call that hung
// up mid-turn stays forgotten.
func (s *ConversationService) finishTurn(callSID string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.states[callSID] == domain.CallProcessingReply {
		s.states[callSID] = domain.CallAwaitingRecording
	}
}

func (s *ConversationService) setState(callSID string, st domain.CallState) {
	if callSID == "" {
		return
	}
	s.stateMu.Lock()
	s.states[callSID] = st
	s.stateMu.Unlock()
}

var newTurn = repository.NewTurn

func (s *ConversationService) playAndRecord() Instructions {
	return Instructions{
		AudioURL:     s.cfg.PublicURL + "/audio",
		RecordAction: recordingAction,
		MaxLength:    recordMaxLength,
	}
}
