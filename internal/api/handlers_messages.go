package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/storage"
)

// Request validation lives here, at the HTTP boundary; the core components
// trust what they are handed.
var receiverPattern = regexp.MustCompile(`^\+[1-9][0-9]{5,14}$`)

const maxTextLength = 1600 // 10 concatenated GSM segments, generous upper bound

type MessageHandler struct {
	store storage.Storage
}

func NewMessageHandler(store storage.Storage) *MessageHandler {
	return &MessageHandler{store: store}
}

type enqueueRequest struct {
	ID       string `json:"id,omitempty"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

func (h *MessageHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !receiverPattern.MatchString(req.Receiver) {
		writeError(w, http.StatusBadRequest, "receiver must be an international phone number like +491795345170")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if !utf8.ValidString(req.Text) || utf8.RuneCountInString(req.Text) > maxTextLength {
		writeError(w, http.StatusBadRequest, "text is not sendable")
		return
	}

	id := req.ID
	if id == "" {
		id = models.NewID("out")
	}

	msg := &models.OutboundMessage{
		ID:        id,
		Receiver:  req.Receiver,
		Text:      req.Text,
		Status:    models.StatusScheduled,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.EnqueueOutbound(r.Context(), msg); err != nil {
		if errors.Is(err, storage.ErrDuplicateID) {
			writeError(w, http.StatusConflict, "a message with this id already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue message")
		return
	}

	writeJSON(w, http.StatusAccepted, msg)
}

func (h *MessageHandler) GetOutgoing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := h.store.GetOutbound(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	if sender == "" {
		writeError(w, http.StatusBadRequest, "sender query parameter is required")
		return
	}

	msgs, err := h.store.ListInbound(r.Context(), sender)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []models.InboundMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
