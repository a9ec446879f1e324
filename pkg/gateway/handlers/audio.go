package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
)

// AudioHandler accepts microphone audio over plain HTTP for clients
// that cannot hold a WebSocket open.
type AudioHandler struct {
	Manager *sessions.Manager
}

type audioChunkRequest struct {
	SessionID string `json:"session_id"`
	AudioData string `json:"audio_data"` // base64 PCM
}

func (h AudioHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	var req audioChunkRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, r, apierror.NewInvalidRequestError("request body must be JSON"))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeAPIError(w, r, apierror.NewInvalidRequestErrorWithParam("session_id is required", "session_id"))
		return
	}
	if req.AudioData == "" {
		writeAPIError(w, r, apierror.NewInvalidRequestErrorWithParam("audio_data is required", "audio_data"))
		return
	}

	sess, ok := h.Manager.Get(req.SessionID)
	if !ok {
		writeAPIError(w, r, apierror.NewNotFoundError("session not found"))
		return
	}
	if err := sess.AddAudioChunk(req.AudioData); err != nil {
		if errors.Is(err, session.ErrNotStreaming) {
			writeAPIError(w, r, apierror.NewConflictError("session is not streaming"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "bytes_sent": len(req.AudioData)})
}

type audioEndRequest struct {
	SessionID string `json:"session_id"`
}

func (h AudioHandler) End(w http.ResponseWriter, r *http.Request) {
	var req audioEndRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, r, apierror.NewInvalidRequestError("request body must be JSON"))
		return
	}
	sess, ok := h.Manager.Get(req.SessionID)
	if !ok {
		writeAPIError(w, r, apierror.NewNotFoundError("session not found"))
		return
	}
	if err := sess.SendAudioContentEnd(); err != nil {
		if errors.Is(err, session.ErrNotStreaming) {
			writeAPIError(w, r, apierror.NewConflictError("session is not streaming"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
