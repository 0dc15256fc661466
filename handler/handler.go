// Package handler exposes the voice webhooks and the operator API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"collector-agent/internal/domain"
	"collector-agent/internal/usecase"
)

type Conversation interface {
	Initial(ctx context.Context, callSID string) usecase.Instructions
	HandleRecording(ctx context.Context, in usecase.RecordingInput) usecase.Instructions
	Hangup(callSID string)
	AudioPath() string
}

type Intake interface {
	StartCall(ctx context.Context, p domain.DebtorProfile) (usecase.CallStarted, error)
	SendSMS(ctx context.Context, to, message string) (string, error)
}

type TurnLister interface {
	ListTurns(ctx context.Context, callSID string, limit int) ([]domain.Turn, error)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	conv          Conversation
	intake        Intake
	turns         TurnLister
	logger        *slog.Logger
	operatorToken string
	root          http.Handler
}

type Option func(*Handler)

// WithOperatorToken sets the bearer token required by the operator API.
func WithOperatorToken(token string) Option {
	return func(h *Handler) {
		h.operatorToken = strings.TrimSpace(token)
	}
}

// NewHandler builds the router. turns may be nil when no archive is
// configured; the turns endpoint then answers 404. Without an operator
// token the operator API refuses every request.
func NewHandler(conv Conversation, intake Intake, turns TurnLister, logger *slog.Logger, opts ...Option) (*Handler, error) {
	if conv == nil {
		return nil, errors.New("handler: conversation must not be nil")
	}
	if intake == nil {
		return nil, errors.New("handler: intake must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{conv: conv, intake: intake, turns: turns, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	h.root = correlationMiddleware(loggingMiddleware(logger)(h.routes()))
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		h.logger.Error("unexpected error", "correlationId", correlationID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "correlationId", correlationID(r.Context()), "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	}
	writeJSON(w, status, errorResponse{Error: string(ue.Code), Reason: ue.Reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorTurnInProgress:
		return http.StatusConflict
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
