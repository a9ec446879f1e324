package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
)

// SessionHandler owns session lifecycle: start, info, and teardown.
type SessionHandler struct {
	Manager *sessions.Manager
	Conv    *conversation.Store
	Logger  *slog.Logger
}

type startRequest struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type startResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (h SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeAPIError(w, r, apierror.NewInvalidRequestError("request body must be JSON"))
			return
		}
	}

	sess, err := h.Manager.Create(r.Context(), sessions.StartOptions{
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Conv != nil {
		h.Conv.GetOrCreate(sess.ID)
	}
	if h.Logger != nil {
		h.Logger.Info("session started", "session_id", sess.ID)
	}
	writeJSON(w, http.StatusOK, startResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status()),
		CreatedAt: sess.CreatedAt(),
	})
}

func (h SessionHandler) Info(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	info, ok := h.Manager.Info(id)
	if !ok {
		writeAPIError(w, r, apierror.NewNotFoundError("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	if _, ok := h.Manager.Get(id); !ok {
		writeAPIError(w, r, apierror.NewNotFoundError("session not found"))
		return
	}
	h.Manager.End(id)
	if h.Conv != nil {
		h.Conv.Delete(id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "closed"})
}
