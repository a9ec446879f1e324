package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
)

// AdminHandler exposes the compliance operations surface: rule reloads,
// rule status, and audit trail access.
type AdminHandler struct {
	Engine *guardrails.Engine
	Audit  *audit.Log
	Logger *slog.Logger
}

func (h AdminHandler) GuardrailsReload(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.ReloadRules(); err != nil {
		writeAPIError(w, r, &apierror.Error{
			Type:    apierror.ErrAPI,
			Message: "rule reload failed: " + err.Error(),
		})
		return
	}
	st, err := h.Engine.Status()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("guardrail rules reloaded", "enabled_rules", st.EnabledRules)
	}
	writeJSON(w, http.StatusOK, st)
}

func (h AdminHandler) GuardrailsStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Engine.Status()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h AdminHandler) AuditSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	includeText := strings.EqualFold(r.URL.Query().Get("include_text"), "true")

	entries, err := h.Audit.ReadSessionLogs(id, includeText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"count":      len(entries),
		"entries":    entries,
	})
}

func (h AdminHandler) AuditStats(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			writeAPIError(w, r, apierror.NewInvalidRequestErrorWithParam("date must be YYYY-MM-DD", "date"))
			return
		}
		day = parsed
	}
	stats, err := h.Audit.Stats(day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
