package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/config"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/rules"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/protocol"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/transport/transporttest"
)

func newTestServer(t *testing.T) (*Server, *sessions.Manager) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dir := t.TempDir()
	rulesPath := dir + "/rules.xlsx"
	if err := rules.WriteDefaultWorkbook(rulesPath); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	store := rules.NewStore(rulesPath, logger)
	engine := guardrails.NewEngine(store, logger)
	auditLog := audit.NewLog(dir, dir, logger)

	manager := sessions.NewManager(sessions.Options{
		SessionConfig: session.Config{
			ModelID:        "amazon.nova-sonic-v1:0",
			Inference:      protocol.InferenceConfig{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7},
			InputFormat:    protocol.AudioFormat{SampleRateHz: 16000, SampleSizeBits: 16, ChannelCount: 1},
			OutputFormat:   protocol.AudioFormat{SampleRateHz: 24000, SampleSizeBits: 16, ChannelCount: 1, VoiceID: "matthew"},
			ConnectTimeout: time.Second,
			SystemPrompt:   "test prompt",
		},
		Dialer:      &transporttest.Dialer{},
		Ceiling:     5,
		IdleTimeout: time.Minute,
		Logger:      logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	s := New(Deps{
		Config: config.Config{
			MaxConcurrentSessions: 5,
			DefaultLocale:         "en-US",
			AdminAuthMode:         config.AuthModeRequired,
			AdminAPIKeys:          map[string]struct{}{"sonic_admin_test": {}},
			CORSAllowedOrigins:    map[string]struct{}{},
		},
		Logger:  logger,
		Manager: manager,
		Engine:  engine,
		Audit:   auditLog,
		Metrics: metrics.New(),
		Conv:    conversation.NewStore(),
	})
	return s, manager
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_Healthz(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestServer_Readyz_ReportsRules(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK        bool `json:"ok"`
		RuleCount int  `json:"rule_count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK || resp.RuleCount == 0 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader("{}")))
	if rr.Code != http.StatusOK {
		t.Fatalf("start status=%d body=%q", rr.Code, rr.Body.String())
	}
	var started struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if started.SessionID == "" || started.Status != string(session.StatusStreaming) {
		t.Fatalf("started=%+v", started)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/session/"+started.SessionID+"/info", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("info status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/session/"+started.SessionID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/session/"+started.SessionID+"/info", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("info after delete status=%d", rr.Code)
	}
}

func TestServer_AudioChunk_UnknownSession404(t *testing.T) {
	s, _ := newTestServer(t)

	body := strings.NewReader(`{"session_id":"nope","audio_data":"AAAA"}`)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/audio/chunk", body))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_AdminRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/guardrails/status", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/guardrails/status", nil)
	req.Header.Set("Authorization", "Bearer sonic_admin_test")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"enabled_rules"`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestServer_AdminReload(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/guardrails/reload", nil)
	req.Header.Set("Authorization", "Bearer sonic_admin_test")
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
