// Package sessions tracks live speech sessions: the concurrency
// ceiling, idle sweeping, and coordinated shutdown.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/transport"
)

// Info is a point-in-time view of one session.
type Info struct {
	SessionID    string         `json:"session_id"`
	Status       session.Status `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// StartOptions customize one session.
type StartOptions struct {
	SystemPrompt string
}

// Manager owns every live session.
type Manager struct {
	cfg        session.Config
	dialer     transport.Dialer
	dispatcher session.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics

	ceiling       int
	idleTimeout   time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// Options configure a Manager.
type Options struct {
	SessionConfig session.Config
	Dialer        transport.Dialer
	Dispatcher    session.Dispatcher
	Ceiling       int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:           opts.SessionConfig,
		dialer:        opts.Dialer,
		dispatcher:    opts.Dispatcher,
		logger:        logger,
		metrics:       opts.Metrics,
		ceiling:       opts.Ceiling,
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		sessions:      make(map[string]*session.Session),
		stop:          make(chan struct{}),
	}
	if m.sweepInterval > 0 {
		go m.sweepLoop()
	}
	return m
}

// Create starts a new session. The ceiling is checked before the
// provider dial so capacity rejections are cheap.
func (m *Manager) Create(ctx context.Context, opts StartOptions) (*session.Session, error) {
	m.mu.Lock()
	if m.ceiling > 0 && m.activeLocked() >= m.ceiling {
		m.mu.Unlock()
		return nil, apierror.NewCapacityError("maximum concurrent sessions reached")
	}
	id := uuid.NewString()
	cfg := m.cfg
	if opts.SystemPrompt != "" {
		cfg.SystemPrompt = opts.SystemPrompt
	}
	s := session.New(id, cfg, m.dialer, m.dispatcher, m.logger)
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	if err := s.Initialize(ctx); err != nil {
		m.remove(id)
		return nil, apierror.NewProviderError(err.Error())
	}

	if m.metrics != nil {
		m.metrics.SessionStarted()
	}
	m.logger.Info("session started", "session_id", id)
	return s, nil
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, s := range m.sessions {
		switch s.Status() {
		case session.StatusCreated, session.StatusStreaming:
			n++
		}
	}
	return n
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Info returns session metadata by id.
func (m *Manager) Info(id string) (Info, bool) {
	s, ok := m.Get(id)
	if !ok {
		return Info{}, false
	}
	return Info{
		SessionID:    s.ID,
		Status:       s.Status(),
		CreatedAt:    s.CreatedAt(),
		LastActivity: s.LastActivity(),
	}, true
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// End closes and removes a session. Ending an unknown id is a no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("end for unknown session", "session_id", id)
		return
	}
	s.Close()
	// Only the call that wins the removal reports the end; a concurrent
	// End on the same id (idle sweep racing a client delete) must not
	// decrement the gauge twice.
	if !m.remove(id) {
		return
	}
	if m.metrics != nil {
		m.metrics.SessionEnded()
	}
	m.logger.Info("session ended", "session_id", id)
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	m.wg.Done()
	return true
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle ends sessions whose last activity is older than the idle
// timeout.
func (m *Manager) sweepIdle() {
	if m.idleTimeout <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.logger.Info("sweeping idle session", "session_id", id, "idle_timeout", m.idleTimeout)
		m.End(id)
	}
}

// Shutdown stops the sweeper and ends every session, waiting for each
// to release or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.End(id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
