package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"collector-agent/internal/domain"
	"collector-agent/internal/usecase"
)

const maxBodyBytes = 64 << 10

// Terminal statuses reported by the call status callback.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type smsResponse struct {
	MessageSID string `json:"messageSid"`
}

type turnsResponse struct {
	CallSID string         `json:"callSid"`
	Turns   []turnResponse `json:"turns"`
}

type turnResponse struct {
	Recording  string `json:"recordingSid,omitempty"`
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/initial", h.initial).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/handle-recording", h.handleRecording).Methods(http.MethodPost)
	r.HandleFunc("/audio", h.audio).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/call-status", h.callStatus).Methods(http.MethodPost)
	r.HandleFunc("/healthCheck", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	op := r.NewRoute().Subrouter()
	op.Use(operatorAuth(h.operatorToken, h.logger))
	op.HandleFunc("/debtors", h.createDebtor).Methods(http.MethodPost)
	op.HandleFunc("/sms", h.sendSMS).Methods(http.MethodPost)
	op.HandleFunc("/calls/{sid}/turns", h.listTurns).Methods(http.MethodGet)
	return r
}

func (h *Handler) initial(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	h.writeInstructions(w, h.conv.Initial(r.Context(), r.FormValue("CallSid")))
}

func (h *Handler) handleRecording(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("malformed recording callback", "correlationId", correlationID(r.Context()), "err", err)
	}
	in := usecase.RecordingInput{
		CallSID:      r.FormValue("CallSid"),
		RecordingSID: r.FormValue("RecordingSid"),
	}
	h.writeInstructions(w, h.conv.HandleRecording(r.Context(), in))
}

func (h *Handler) writeInstructions(w http.ResponseWriter, in usecase.Instructions) {
	body, err := renderTwiML(in)
	if err != nil {
		h.logger.Error("twiml render failed", "err", err)
		http.Error(w, "twiml render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (h *Handler) audio(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.conv.AudioPath())
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("audio open failed", "correlationId", correlationID(r.Context()), "err", err)
		http.Error(w, "audio unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	if fi, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("audio write interrupted", "err", err)
	}
}

func (h *Handler) callStatus(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	callSID := r.FormValue("CallSid")
	status := strings.ToLower(r.FormValue("CallStatus"))
	if callSID != "" && terminalCallStatuses[status] {
		h.conv.Hangup(callSID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createDebtor(w http.ResponseWriter, r *http.Request) {
	var p domain.DebtorProfile
	if err := decodeJSON(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
		return
	}
	out, err := h.intake.StartCall(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (h *Handler) sendSMS(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
		return
	}
	sid, err := h.intake.SendSMS(r.Context(), req.To, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, smsResponse{MessageSID: sid})
}

func (h *Handler) listTurns(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "turn_archive_disabled"})
		return
	}
	callSID := mux.Vars(r)["sid"]
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_limit"})
			return
		}
		limit = n
	}

	turns, err := h.turns.ListTurns(r.Context(), callSID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := turnsResponse{CallSID: callSID, Turns: make([]turnResponse, 0, len(turns))}
	for _, t := range turns {
		out.Turns = append(out.Turns, turnResponse{
			Recording:  t.Recording,
			Transcript: t.Transcript,
			Reply:      t.Reply,
			Status:     t.Status,
			CreatedAt:  t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
