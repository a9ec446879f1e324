package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
)

// WSHandler carries a full duplex session on one socket: audio frames
// inbound, filtered session events outbound.
type WSHandler struct {
	Manager *sessions.Manager
	Engine  *guardrails.Engine
	Audit   *audit.Log
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Locale  string
	Role    string

	WriteTimeout  time.Duration
	PingInterval  time.Duration
	MaxFrameBytes int64
}

type wsClientFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

func (h WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.MaxFrameBytes)
	}

	if err := sess.SendAudioContentStart(); err != nil && h.Logger != nil {
		h.Logger.Warn("audio content start failed", "session_id", id, "error", err)
	}

	// Reader goroutine: client frames drive the provider stream.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var frame wsClientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			switch frame.Type {
			case "audio_data":
				if frame.Audio == "" {
					continue
				}
				if err := sess.AddAudioChunk(frame.Audio); err != nil && h.Logger != nil {
					h.Logger.Warn("audio chunk rejected", "session_id", id, "error", err)
				}
			case "end_audio":
				_ = sess.SendAudioContentEnd()
			case "end_session":
				h.Manager.End(id)
				return
			}
		}
	}()

	writeTimeout := h.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	pingInterval := h.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	filter := newGuardrailFilter(h.Engine, h.Audit, h.Metrics, sess, h.Locale, h.Role)

	for {
		select {
		case <-readerDone:
			return
		case <-ping.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				deadline := time.Now().Add(writeTimeout)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			out, forward := filter.Apply(ev)
			if !forward {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(out); err != nil {
				return
			}
			if ev.Type == session.EventError {
				return
			}
		}
	}
}
