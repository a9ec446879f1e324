package handlers

import (
	"net/http"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway can take a session: the
// guardrail rules must load and the session ceiling must have room.
type ReadyHandler struct {
	Engine  *guardrails.Engine
	Manager *sessions.Manager
	Ceiling int
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		ActiveSessions int      `json:"active_sessions"`
		MaxSessions    int      `json:"max_sessions"`
		RuleCount      int      `json:"rule_count"`
		Issues         []string `json:"issues,omitempty"`
	}

	resp := readyResp{MaxSessions: h.Ceiling}

	if h.Manager != nil {
		resp.ActiveSessions = h.Manager.Active()
		if h.Ceiling > 0 && resp.ActiveSessions >= h.Ceiling {
			resp.Issues = append(resp.Issues, "session ceiling reached")
		}
	}
	if h.Engine != nil {
		st, err := h.Engine.Status()
		if err != nil {
			resp.Issues = append(resp.Issues, "guardrail rules failed to load: "+err.Error())
		} else {
			resp.RuleCount = st.EnabledRules
		}
	}

	resp.OK = len(resp.Issues) == 0
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
