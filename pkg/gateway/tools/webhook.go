package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
)

// Emitter posts workflow events to the configured n8n webhook. An
// unconfigured emitter reports success and skips the call.
type Emitter struct {
	URL    string
	Secret string
	Client *http.Client
	Logger *slog.Logger
}

func NewEmitter(url, secret string, timeout time.Duration, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Emit posts one event. The payload is wrapped with the event type and
// a UTC timestamp.
func (e *Emitter) Emit(ctx context.Context, eventType string, payload map[string]any) error {
	if e.URL == "" {
		e.Logger.Debug("webhook not configured, event skipped", "event_type", eventType)
		return nil
	}

	body := map[string]any{
		"eventType": eventType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Secret != "" {
		req.Header.Set("X-N8N-Secret", e.Secret)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmitEventTool lets the model publish a workflow event directly.
type EmitEventTool struct {
	Emitter *Emitter
}

func (t *EmitEventTool) Name() string { return "emitN8nEventTool" }

func (t *EmitEventTool) Description() string {
	return "Publish a workflow event to the automation pipeline, such as a CRM sync trigger."
}

func (t *EmitEventTool) InputSchema() string {
	return `{"type":"object","properties":{
		"event_type":{"type":"string","description":"Event name, e.g. call.saved"},
		"payload":{"type":"object"}
	},"required":["event_type"]}`
}

func (t *EmitEventTool) Execute(ctx context.Context, sessionID string, args map[string]any) (map[string]any, error) {
	eventType := strings.TrimSpace(stringArg(args, "event_type"))
	if eventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}
	payload, _ := args["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	payload["session_id"] = sessionID

	if t.Emitter == nil || t.Emitter.URL == "" {
		return map[string]any{"ok": true, "skipped": true}, nil
	}
	if err := t.Emitter.Emit(ctx, eventType, payload); err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return map[string]any{"ok": true}, nil
}

// CreateFollowUpTaskTool records a follow-up task and publishes a
// task.created event.
type CreateFollowUpTaskTool struct {
	Emitter *Emitter
	Conv    *conversation.Store
}

func (t *CreateFollowUpTaskTool) Name() string { return "createFollowUpTaskTool" }

func (t *CreateFollowUpTaskTool) Description() string {
	return "Create a follow-up task for the saved call, such as a sample drop or a scheduled callback."
}

func (t *CreateFollowUpTaskTool) InputSchema() string {
	return `{"type":"object","properties":{
		"task_type":{"type":"string"},
		"description":{"type":"string"},
		"due_date":{"type":"string"},
		"assigned_to":{"type":"string"}
	},"required":["description"]}`
}

func (t *CreateFollowUpTaskTool) Execute(ctx context.Context, sessionID string, args map[string]any) (map[string]any, error) {
	description := strings.TrimSpace(stringArg(args, "description"))
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}

	task := conversation.FollowUpTask{
		TaskType:    stringArg(args, "task_type"),
		Description: description,
		DueDate:     stringArg(args, "due_date"),
		AssignedTo:  stringArg(args, "assigned_to"),
	}
	if t.Conv != nil {
		state := t.Conv.GetOrCreate(sessionID)
		state.FollowUpTask = &task
	}

	taskID := "TASK_" + strings.ToUpper(uuid.NewString()[:8])
	if t.Emitter != nil && t.Emitter.URL != "" {
		payload := map[string]any{
			"session_id":       sessionID,
			"external_task_id": taskID,
			"task_type":        task.TaskType,
			"description":      task.Description,
			"due_date":         task.DueDate,
			"assigned_to":      task.AssignedTo,
		}
		if err := t.Emitter.Emit(ctx, "task.created", payload); err != nil {
			return map[string]any{"ok": false, "error": err.Error()}, nil
		}
	}
	return map[string]any{"ok": true, "external_task_id": taskID}, nil
}
