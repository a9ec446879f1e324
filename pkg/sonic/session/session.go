// Package session implements one live speech session against the
// provider stream: the init handshake, the response loop, tool
// round trips, and the client-facing event bus.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/protocol"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/transport"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusStreaming Status = "streaming"
	StatusClosing   Status = "closing"
	StatusClosed    Status = "closed"
	StatusError     Status = "error"
)

// ErrConsumerAttached is returned by Subscribe when the session already
// has an active event consumer.
var ErrConsumerAttached = errors.New("session already has an event consumer")

// ErrNotStreaming is returned when audio arrives on a session that is
// not streaming.
var ErrNotStreaming = errors.New("session is not streaming")

// Dispatcher runs provider tool calls. Implementations never return an
// error; failures come back as structured result maps.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, toolName string, args map[string]any) map[string]any
	Definitions() []protocol.ToolSpec
}

// Event is one client-facing session event.
type Event struct {
	Type        string `json:"type"`
	Role        string `json:"role,omitempty"`
	Content     string `json:"content,omitempty"`
	Speculative bool   `json:"speculative,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolUseID   string `json:"tool_use_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Event types published on the bus.
const (
	EventTranscript   = "transcript"
	EventAudio        = "audio"
	EventContentStart = "content_start"
	EventContentEnd   = "content_end"
	EventToolLog      = "tool_log"
	EventError        = "error"
	EventCompleted    = "completed"
)

// Config carries the per-session provider parameters.
type Config struct {
	ModelID        string
	Inference      protocol.InferenceConfig
	InputFormat    protocol.AudioFormat
	OutputFormat   protocol.AudioFormat
	ConnectTimeout time.Duration
	SystemPrompt   string
}

// Session is one live provider stream.
type Session struct {
	ID         string
	promptName string

	cfg        Config
	dialer     transport.Dialer
	dispatcher Dispatcher
	logger     *slog.Logger

	conn   transport.Conn
	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup

	sendMu sync.Mutex // orders all provider-bound frames

	mu            sync.Mutex
	status        Status
	createdAt     time.Time
	lastActivity  time.Time
	audioContent  string // open audio content block name, "" when closed
	suppressAudio bool
	pendingTool   *protocol.ToolUseEvent

	busMu    sync.Mutex
	events   chan Event
	consumer bool

	closeOnce sync.Once
}

// New builds a session in the created state. Initialize must be called
// before audio flows.
func New(id string, cfg Config, dialer transport.Dialer, dispatcher Dispatcher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		promptName:   uuid.NewString(),
		cfg:          cfg,
		dialer:       dialer,
		dispatcher:   dispatcher,
		logger:       logger.With("session_id", id),
		status:       StatusCreated,
		createdAt:    now,
		lastActivity: now,
		events:       make(chan Event, 256),
	}
}

// Initialize dials the provider with the configured timeout, sends the
// init sequence, and starts the response loop.
func (s *Session) Initialize(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, s.cfg.ModelID)
	if err != nil {
		s.setStatus(StatusError)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("provider connect timed out after %s: %w", s.cfg.ConnectTimeout, err)
		}
		return fmt.Errorf("provider connect: %w", err)
	}
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.sendInitSequence(); err != nil {
		conn.Close()
		s.setStatus(StatusError)
		return err
	}

	s.setStatus(StatusStreaming)
	s.loopWG.Add(1)
	go s.responseLoop()
	return nil
}

// sendInitSequence sends sessionStart, promptStart with the tool
// declarations, and the system prompt content block.
func (s *Session) sendInitSequence() error {
	var tools []protocol.ToolSpec
	if s.dispatcher != nil {
		tools = s.dispatcher.Definitions()
	}

	sessionStart, err := protocol.SessionStart(s.cfg.Inference)
	if err != nil {
		return err
	}
	promptStart, err := protocol.PromptStart(s.promptName, s.cfg.OutputFormat, tools)
	if err != nil {
		return err
	}
	systemContent := uuid.NewString()
	contentStart, err := protocol.ContentStartText(s.promptName, systemContent, protocol.RoleSystem, true)
	if err != nil {
		return err
	}
	textInput, err := protocol.TextInput(s.promptName, systemContent, s.cfg.SystemPrompt)
	if err != nil {
		return err
	}
	contentEnd, err := protocol.ContentEnd(s.promptName, systemContent)
	if err != nil {
		return err
	}
	return s.sendSeq(sessionStart, promptStart, contentStart, textInput, contentEnd)
}

// sendSeq writes frames back to back while holding the send lock, so a
// multi-frame sequence is never interleaved with other writers.
func (s *Session) sendSeq(frames ...[]byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, frame := range frames {
		if err := s.conn.Send(s.sendCtx(), frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// SendAudioContentStart opens the user audio content block. Repeated
// calls while a block is open are no-ops.
func (s *Session) SendAudioContentStart() error {
	s.mu.Lock()
	if s.status != StatusStreaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	if s.audioContent != "" {
		s.mu.Unlock()
		return nil
	}
	name := uuid.NewString()
	s.audioContent = name
	s.mu.Unlock()

	frame, err := protocol.ContentStartAudio(s.promptName, name, s.cfg.InputFormat)
	if err != nil {
		return err
	}
	return s.sendSeq(frame)
}

// AddAudioChunk forwards one base64 PCM chunk, opening the audio block
// if needed. Chunks are delivered to the provider in call order.
func (s *Session) AddAudioChunk(b64 string) error {
	if err := s.SendAudioContentStart(); err != nil {
		return err
	}
	s.Touch()

	s.mu.Lock()
	name := s.audioContent
	s.mu.Unlock()
	if name == "" {
		return ErrNotStreaming
	}

	frame, err := protocol.AudioInput(s.promptName, name, b64)
	if err != nil {
		return err
	}
	return s.sendSeq(frame)
}

// SendAudioContentEnd closes the open audio content block, if any.
func (s *Session) SendAudioContentEnd() error {
	s.mu.Lock()
	name := s.audioContent
	s.audioContent = ""
	s.mu.Unlock()
	if name == "" {
		return nil
	}
	frame, err := protocol.ContentEnd(s.promptName, name)
	if err != nil {
		return err
	}
	return s.sendSeq(frame)
}

// Close ends the session. Best effort: each teardown frame is attempted
// regardless of earlier failures. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setStatus(StatusClosing)

		if s.conn != nil {
			_ = s.SendAudioContentEnd()
			if frame, err := protocol.PromptEnd(s.promptName); err == nil {
				_ = s.sendSeq(frame)
			}
			if frame, err := protocol.SessionEnd(); err == nil {
				_ = s.sendSeq(frame)
			}
			_ = s.conn.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.loopWG.Wait()
		s.setStatus(StatusClosed)

		s.busMu.Lock()
		close(s.events)
		s.busMu.Unlock()
	})
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed && st != StatusClosed {
		return
	}
	s.status = st
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// LastActivity returns the last audio or event timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch records activity for idle sweeping.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

// SetSuppressAudio marks the next audio output for suppression, used
// when a guardrail replaced the spoken text.
func (s *Session) SetSuppressAudio(v bool) {
	s.mu.Lock()
	s.suppressAudio = v
	s.mu.Unlock()
}

// ConsumeSuppressAudio reports and clears the suppression flag.
func (s *Session) ConsumeSuppressAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.suppressAudio
	s.suppressAudio = false
	return was
}

// Subscribe attaches the single event consumer. A second subscriber
// gets ErrConsumerAttached until the first calls Unsubscribe.
func (s *Session) Subscribe() (<-chan Event, error) {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	if s.consumer {
		return nil, ErrConsumerAttached
	}
	s.consumer = true
	return s.events, nil
}

// Unsubscribe frees the consumer slot.
func (s *Session) Unsubscribe() {
	s.busMu.Lock()
	s.consumer = false
	s.busMu.Unlock()
}

// publish never blocks: when the consumer is slow the oldest buffered
// event is dropped.
func (s *Session) publish(ev Event) {
	if s.Status() == StatusClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

// responseLoop is the sole reader of the provider stream.
func (s *Session) responseLoop() {
	defer s.loopWG.Done()

	for {
		raw, err := s.conn.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || s.Status() == StatusClosing || s.Status() == StatusClosed {
				return
			}
			s.logger.Error("provider stream read failed", "error", err)
			s.publish(Event{Type: EventError, Error: "provider stream closed"})
			s.setStatus(StatusError)
			return
		}

		ev, err := protocol.Decode(raw)
		if err != nil {
			s.logger.Warn("undecodable provider frame skipped", "error", err)
			continue
		}
		s.handleProviderEvent(ev)
	}
}

func (s *Session) handleProviderEvent(ev *protocol.ServerEvent) {
	switch ev.Type {
	case protocol.EventContentStart:
		if ev.ContentStart.Type == protocol.ContentTypeText {
			s.publish(Event{
				Type:        EventContentStart,
				Role:        ev.ContentStart.Role,
				Speculative: ev.ContentStart.Speculative(),
			})
		}

	case protocol.EventTextOutput:
		if ev.TextOutput.Interrupted() {
			s.logger.Debug("barge-in marker received")
			s.publish(Event{Type: EventTranscript, Role: ev.TextOutput.Role, Interrupted: true})
			return
		}
		s.publish(Event{
			Type:    EventTranscript,
			Role:    ev.TextOutput.Role,
			Content: ev.TextOutput.Content,
		})

	case protocol.EventAudioOutput:
		s.publish(Event{Type: EventAudio, Content: ev.AudioOutput.Content})

	case protocol.EventToolUse:
		s.mu.Lock()
		s.pendingTool = ev.ToolUse
		s.mu.Unlock()
		s.publish(Event{
			Type:      EventToolLog,
			ToolName:  ev.ToolUse.ToolName,
			ToolUseID: ev.ToolUse.ToolUseID,
			Content:   ev.ToolUse.Content,
		})

	case protocol.EventContentEnd:
		if ev.ContentEnd.Type == protocol.ContentTypeTool {
			s.mu.Lock()
			pending := s.pendingTool
			s.pendingTool = nil
			s.mu.Unlock()
			if pending != nil {
				s.runTool(pending)
			}
			return
		}
		s.publish(Event{Type: EventContentEnd})

	case protocol.EventPromptEnd, protocol.EventCompletionEnd:
		s.publish(Event{Type: EventCompleted})
	}
}

// runTool dispatches the pending tool call and sends the three-frame
// result sequence back under one send-lock hold.
func (s *Session) runTool(use *protocol.ToolUseEvent) {
	var result map[string]any
	if s.dispatcher == nil {
		result = map[string]any{"error": "no tools configured"}
	} else {
		result = s.dispatcher.Dispatch(s.sendCtx(), s.ID, use.ToolName, use.Arguments())
	}

	contentName := uuid.NewString()
	start, err := protocol.ContentStartToolResult(s.promptName, contentName, use.ToolUseID)
	if err != nil {
		s.logger.Error("tool result encode failed", "tool", use.ToolName, "error", err)
		return
	}
	payload, err := protocol.ToolResult(s.promptName, contentName, result)
	if err != nil {
		s.logger.Error("tool result encode failed", "tool", use.ToolName, "error", err)
		return
	}
	end, err := protocol.ContentEnd(s.promptName, contentName)
	if err != nil {
		s.logger.Error("tool result encode failed", "tool", use.ToolName, "error", err)
		return
	}

	if err := s.sendSeq(start, payload, end); err != nil {
		s.logger.Error("tool result send failed", "tool", use.ToolName, "error", err)
		return
	}

	resultJSON := fmt.Sprintf("%v", result)
	if b, err := json.Marshal(result); err == nil {
		resultJSON = string(b)
	}
	s.publish(Event{
		Type:      EventToolLog,
		ToolName:  use.ToolName,
		ToolUseID: use.ToolUseID,
		Content:   resultJSON,
		Role:      protocol.RoleTool,
	})
}
