// Package server wires the HTTP routes and middleware chain.
package server

import (
	"log/slog"
	"net/http"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/config"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/handlers"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/mw"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config  config.Config
	Logger  *slog.Logger
	Manager *sessions.Manager
	Engine  *guardrails.Engine
	Audit   *audit.Log
	Metrics *metrics.Metrics
	Conv    *conversation.Store
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	d := s.deps
	cfg := d.Config

	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Engine:  d.Engine,
		Manager: d.Manager,
		Ceiling: cfg.MaxConcurrentSessions,
	})
	if d.Metrics != nil {
		s.mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	sessionH := handlers.SessionHandler{Manager: d.Manager, Conv: d.Conv, Logger: d.Logger}
	s.mux.HandleFunc("POST /session/start", sessionH.Start)
	s.mux.HandleFunc("GET /session/{session_id}/info", sessionH.Info)
	s.mux.HandleFunc("DELETE /session/{session_id}", sessionH.Delete)

	audioH := handlers.AudioHandler{Manager: d.Manager}
	s.mux.HandleFunc("POST /audio/chunk", audioH.Chunk)
	s.mux.HandleFunc("POST /audio/end", audioH.End)

	s.mux.Handle("GET /events/stream/{session_id}", handlers.EventsHandler{
		Manager:      d.Manager,
		Engine:       d.Engine,
		Audit:        d.Audit,
		Metrics:      d.Metrics,
		Logger:       d.Logger,
		Locale:       cfg.DefaultLocale,
		Role:         cfg.GuardrailsRole,
		PingInterval: cfg.SSEPingInterval,
	})
	s.mux.Handle("GET /ws/{session_id}", handlers.WSHandler{
		Manager:       d.Manager,
		Engine:        d.Engine,
		Audit:         d.Audit,
		Metrics:       d.Metrics,
		Logger:        d.Logger,
		Locale:        cfg.DefaultLocale,
		Role:          cfg.GuardrailsRole,
		WriteTimeout:  cfg.WSWriteTimeout,
		PingInterval:  cfg.WSPingInterval,
		MaxFrameBytes: cfg.WSMaxFrameBytes,
	})

	adminH := handlers.AdminHandler{Engine: d.Engine, Audit: d.Audit, Logger: d.Logger}
	admin := http.NewServeMux()
	admin.HandleFunc("POST /admin/guardrails/reload", adminH.GuardrailsReload)
	admin.HandleFunc("GET /admin/guardrails/status", adminH.GuardrailsStatus)
	admin.HandleFunc("GET /admin/audit/stats", adminH.AuditStats)
	admin.HandleFunc("GET /admin/audit/session/{session_id}", adminH.AuditSession)
	s.mux.Handle("/admin/", mw.AdminAuth(cfg, admin))

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.deps.Config, h)
	h = mw.Recover(s.deps.Logger, h)
	h = mw.AccessLog(s.deps.Logger, h)
	h = mw.RequestID(h)
	return h
}
