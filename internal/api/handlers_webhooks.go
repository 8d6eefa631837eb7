package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/storage"
)

const (
	minSecretLength = 10
	maxSecretLength = 64
)

type WebhookHandler struct {
	store storage.Storage
}

func NewWebhookHandler(store storage.Storage) *WebhookHandler {
	return &WebhookHandler{store: store}
}

type registerWebhookRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
	Event  string `json:"event"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req registerWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be a valid http or https URL")
		return
	}
	if len(req.Secret) < minSecretLength || len(req.Secret) > maxSecretLength {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("secret must be between %d and %d bytes", minSecretLength, maxSecretLength))
		return
	}
	if !models.KnownEvent(req.Event) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("event must be one of: %s", strings.Join(models.PossibleEvents, ", ")))
		return
	}

	wh := &models.Webhook{
		ID:     models.NewID("wh"),
		URL:    req.URL,
		Secret: req.Secret,
		Event:  req.Event,
	}

	if err := h.store.CreateWebhook(r.Context(), wh); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register webhook")
		return
	}

	// The secret is returned once, at creation.
	writeJSON(w, http.StatusCreated, wh)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.store.ListWebhooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	if hooks == nil {
		hooks = []models.Webhook{}
	}
	for i := range hooks {
		hooks[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteWebhook(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}
