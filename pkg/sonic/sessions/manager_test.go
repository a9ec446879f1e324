package sessions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/protocol"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/transport/transporttest"
)

func testSessionConfig() session.Config {
	return session.Config{
		ModelID:        "amazon.nova-sonic-v1:0",
		Inference:      protocol.InferenceConfig{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7},
		InputFormat:    protocol.AudioFormat{SampleRateHz: 16000, SampleSizeBits: 16, ChannelCount: 1},
		OutputFormat:   protocol.AudioFormat{SampleRateHz: 24000, SampleSizeBits: 16, ChannelCount: 1, VoiceID: "matthew"},
		ConnectTimeout: time.Second,
		SystemPrompt:   "default prompt",
	}
}

func newTestManager(t *testing.T, ceiling int) (*Manager, *transporttest.Dialer) {
	t.Helper()
	dialer := &transporttest.Dialer{}
	m := NewManager(Options{
		SessionConfig: testSessionConfig(),
		Dialer:        dialer,
		Ceiling:       ceiling,
		IdleTimeout:   time.Minute,
		Logger:        slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, dialer
}

func TestCreate_RegistersAndStreams(t *testing.T) {
	m, _ := newTestManager(t, 10)

	s, err := m.Create(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Status() != session.StatusStreaming {
		t.Fatalf("status = %q", s.Status())
	}
	if m.Active() != 1 {
		t.Fatalf("active = %d, want 1", m.Active())
	}
	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Fatal("Get() did not return the session")
	}
	info, ok := m.Info(s.ID)
	if !ok || info.SessionID != s.ID || info.Status != session.StatusStreaming {
		t.Fatalf("info = %+v", info)
	}
}

func TestCreate_CeilingRejectsBeforeDial(t *testing.T) {
	m, dialer := newTestManager(t, 2)

	for i := 0; i < 2; i++ {
		if _, err := m.Create(context.Background(), StartOptions{}); err != nil {
			t.Fatalf("Create() %d error = %v", i, err)
		}
	}
	dials := len(dialer.Conns())

	_, err := m.Create(context.Background(), StartOptions{})
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Type != apierror.ErrCapacity {
		t.Fatalf("error = %v, want capacity error", err)
	}
	if len(dialer.Conns()) != dials {
		t.Fatal("capacity rejection must not dial the provider")
	}
}

func TestCreate_DialFailureDoesNotLeakSlot(t *testing.T) {
	dialer := &transporttest.Dialer{DialErr: errors.New("refused")}
	m := NewManager(Options{
		SessionConfig: testSessionConfig(),
		Dialer:        dialer,
		Ceiling:       1,
		Logger:        slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	_, err := m.Create(context.Background(), StartOptions{})
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Type != apierror.ErrProvider {
		t.Fatalf("error = %v, want provider error", err)
	}

	// The failed slot must be free again.
	dialer.DialErr = nil
	if _, err := m.Create(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Create() after failure error = %v", err)
	}
}

func TestCreate_SystemPromptOverride(t *testing.T) {
	m, dialer := newTestManager(t, 10)

	if _, err := m.Create(context.Background(), StartOptions{SystemPrompt: "custom prompt"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	conn := dialer.LastConn()
	found := false
	for _, frame := range conn.Sent() {
		if containsAll(string(frame), "textInput", "custom prompt") {
			found = true
		}
	}
	if !found {
		t.Fatal("custom system prompt not sent to provider")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func TestEnd_UnknownIDIsNoOp(t *testing.T) {
	m, _ := newTestManager(t, 10)
	m.End("no-such-session")
}

func TestEnd_RemovesSession(t *testing.T) {
	m, dialer := newTestManager(t, 10)
	s, err := m.Create(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	m.End(s.ID)
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("session still registered after End")
	}
	if !dialer.LastConn().Closed() {
		t.Fatal("provider conn not closed")
	}
	if m.Active() != 0 {
		t.Fatalf("active = %d, want 0", m.Active())
	}
}

func TestEnd_ConcurrentCallsReportOnce(t *testing.T) {
	dialer := &transporttest.Dialer{}
	met := metrics.New()
	m := NewManager(Options{
		SessionConfig: testSessionConfig(),
		Dialer:        dialer,
		Ceiling:       10,
		IdleTimeout:   time.Minute,
		Logger:        slog.New(slog.DiscardHandler),
		Metrics:       met,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	s, err := m.Create(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.End(s.ID)
		}()
	}
	wg.Wait()

	rr := httptest.NewRecorder()
	met.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "sonic_sessions_ended_total 1") {
		t.Fatalf("ended counter incremented more than once:\n%s", body)
	}
	if !strings.Contains(body, "sonic_active_sessions 0") {
		t.Fatalf("active gauge not back to zero:\n%s", body)
	}
}

func TestSweepIdle_EndsStaleSessions(t *testing.T) {
	dialer := &transporttest.Dialer{}
	m := NewManager(Options{
		SessionConfig: testSessionConfig(),
		Dialer:        dialer,
		Ceiling:       10,
		IdleTimeout:   time.Nanosecond,
		Logger:        slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	s, err := m.Create(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	m.sweepIdle()

	if _, ok := m.Get(s.ID); ok {
		t.Fatal("idle session not swept")
	}
}

func TestShutdown_EndsAllSessions(t *testing.T) {
	m, dialer := newTestManager(t, 10)
	for i := 0; i < 3; i++ {
		if _, err := m.Create(context.Background(), StartOptions{}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if m.Active() != 0 {
		t.Fatalf("active = %d, want 0", m.Active())
	}
	for _, conn := range dialer.Conns() {
		if !conn.Closed() {
			t.Fatal("conn left open after shutdown")
		}
	}
}
