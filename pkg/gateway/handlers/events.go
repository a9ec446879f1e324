package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/sse"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
)

// EventsHandler streams one session's events to a client over SSE. The
// session bus allows a single consumer, so a second stream for the same
// session gets a conflict.
type EventsHandler struct {
	Manager      *sessions.Manager
	Engine       *guardrails.Engine
	Audit        *audit.Log
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Locale       string
	Role         string
	PingInterval time.Duration
}

func (h EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	sess, ok := h.Manager.Get(id)
	if !ok {
		writeAPIError(w, r, apierror.NewNotFoundError("session not found"))
		return
	}

	events, err := sess.Subscribe()
	if err != nil {
		if errors.Is(err, session.ErrConsumerAttached) {
			writeAPIError(w, r, apierror.NewConflictError("session already has an event stream"))
			return
		}
		writeError(w, r, err)
		return
	}
	defer sess.Unsubscribe()

	sw, err := sse.New(w)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)

	// The stream attaching signals the client is ready to talk, so the
	// audio input block opens here.
	if err := sess.SendAudioContentStart(); err != nil && h.Logger != nil {
		h.Logger.Warn("audio content start failed", "session_id", id, "error", err)
	}

	pingInterval := h.PingInterval
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	filter := newGuardrailFilter(h.Engine, h.Audit, h.Metrics, sess, h.Locale, h.Role)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := sw.Ping(); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				_ = sw.Send("session_end", map[string]string{"session_id": id})
				return
			}
			out, forward := filter.Apply(ev)
			if !forward {
				continue
			}
			if err := sw.Send(out.Type, out); err != nil {
				return
			}
			if ev.Type == session.EventError {
				return
			}
		}
	}
}
