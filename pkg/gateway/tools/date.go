package tools

import (
	"context"
	"time"
)

// GetDateTool reports the current date and time so the model can
// resolve relative phrases like "today" or "this morning".
type GetDateTool struct {
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (t *GetDateTool) Name() string { return "getDateTool" }

func (t *GetDateTool) Description() string {
	return "Get the current date and time. Use this to resolve relative dates like today or yesterday."
}

func (t *GetDateTool) InputSchema() string {
	return `{"type":"object","properties":{}}`
}

func (t *GetDateTool) Execute(ctx context.Context, sessionID string, args map[string]any) (map[string]any, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	n := now().UTC()
	return map[string]any{
		"date":      n.Format("2006-01-02"),
		"time":      n.Format("15:04"),
		"weekday":   n.Weekday().String(),
		"timezone":  "UTC",
		"timestamp": n.Format(time.RFC3339),
	}, nil
}
