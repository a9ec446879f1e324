// Package tools implements the server-side tools the model can call
// during a session and the dispatcher that routes tool-use events to
// them.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/protocol"
)

// Tool executes one named capability. Execute errors are converted to
// structured error results by the dispatcher; they never reach the
// provider stream as failures.
type Tool interface {
	Name() string
	Description() string
	InputSchema() string
	Execute(ctx context.Context, sessionID string, args map[string]any) (map[string]any, error)
}

// Dispatcher routes tool calls by name.
type Dispatcher struct {
	byName  map[string]Tool
	order   []string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(logger *slog.Logger, m *metrics.Metrics, tools ...Tool) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		byName:  make(map[string]Tool, len(tools)),
		logger:  logger,
		metrics: m,
	}
	for _, t := range tools {
		d.Register(t)
	}
	return d
}

// Register adds a tool. Last registration wins for duplicate names.
func (d *Dispatcher) Register(t Tool) {
	if _, exists := d.byName[t.Name()]; !exists {
		d.order = append(d.order, t.Name())
	}
	d.byName[t.Name()] = t
}

// Names returns the registered tool names in registration order.
func (d *Dispatcher) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Definitions returns the tool declarations for the prompt start frame.
func (d *Dispatcher) Definitions() []protocol.ToolSpec {
	out := make([]protocol.ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		t := d.byName[name]
		out = append(out, protocol.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return out
}

// Dispatch runs a tool call. It never returns an error: an unknown tool
// yields {error, available_tools} and a handler failure or panic yields
// {error, tool_name}, so the model always gets a result to recover
// from.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, toolName string, args map[string]any) (result map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked",
				"tool", toolName, "session_id", sessionID, "panic", r)
			result = map[string]any{
				"error":     fmt.Sprintf("tool %s failed", toolName),
				"tool_name": toolName,
			}
		}
	}()

	t, ok := d.byName[toolName]
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", toolName, "session_id", sessionID)
		return map[string]any{
			"error":           fmt.Sprintf("unknown tool: %s", toolName),
			"available_tools": d.Names(),
		}
	}

	if d.metrics != nil {
		d.metrics.ToolCall(toolName)
	}
	out, err := t.Execute(ctx, sessionID, args)
	if err != nil {
		d.logger.Error("tool execution failed",
			"tool", toolName, "session_id", sessionID, "error", err)
		return map[string]any{
			"error":     err.Error(),
			"tool_name": toolName,
		}
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}
