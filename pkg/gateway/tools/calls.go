package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/warehouse"
)

// CallSink persists call records.
type CallSink interface {
	InsertCall(ctx context.Context, rec warehouse.CallRecord) (int64, error)
}

// InsertCallTool saves the confirmed call record to the warehouse.
type InsertCallTool struct {
	Sink CallSink
	Conv *conversation.Store
}

func (t *InsertCallTool) Name() string { return "insertCallTool" }

func (t *InsertCallTool) Description() string {
	return "Save the confirmed call record. Only call this after the rep has confirmed the read-back summary."
}

func (t *InsertCallTool) InputSchema() string {
	return `{"type":"object","properties":{
		"hcp_name":{"type":"string"},
		"hcp_id":{"type":"string"},
		"call_date":{"type":"string"},
		"call_time":{"type":"string"},
		"product":{"type":"string"},
		"discussion_topic":{"type":"string"},
		"call_notes":{"type":"string"},
		"adverse_event":{"type":"boolean"}
	},"required":["hcp_name","call_date","call_time","product"]}`
}

func (t *InsertCallTool) Execute(ctx context.Context, sessionID string, args map[string]any) (map[string]any, error) {
	rec := warehouse.CallRecord{
		SessionID:       sessionID,
		HCPID:           stringArg(args, "hcp_id"),
		HCPName:         stringArg(args, "hcp_name"),
		CallDate:        stringArg(args, "call_date"),
		CallTime:        stringArg(args, "call_time"),
		Product:         stringArg(args, "product"),
		DiscussionTopic: stringArg(args, "discussion_topic"),
		CallNotes:       stringArg(args, "call_notes"),
		AdverseEvent:    boolArg(args, "adverse_event"),
	}

	var missing []string
	if strings.TrimSpace(rec.HCPName) == "" {
		missing = append(missing, "hcp_name")
	}
	if strings.TrimSpace(rec.CallDate) == "" {
		missing = append(missing, "call_date")
	}
	if strings.TrimSpace(rec.CallTime) == "" {
		missing = append(missing, "call_time")
	}
	if strings.TrimSpace(rec.Product) == "" {
		missing = append(missing, "product")
	}
	if len(missing) > 0 {
		return map[string]any{
			"ok":    false,
			"error": fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")),
		}, nil
	}

	if t.Sink == nil {
		return map[string]any{"ok": false, "error": "call persistence is not configured"}, nil
	}

	// Carry session slot state the model did not repeat in the args.
	if t.Conv != nil {
		if state, ok := t.Conv.Get(sessionID); ok {
			if rec.HCPID == "" {
				rec.HCPID = state.HCPID
			}
			rec.AdverseEvent = rec.AdverseEvent || state.AdverseEvent
			rec.Noncompliance = state.NoncomplianceEvent
		}
	}

	pk, err := t.Sink.InsertCall(ctx, rec)
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}

	if t.Conv != nil {
		state := t.Conv.GetOrCreate(sessionID)
		state.Finalized = true
		state.CallPK = pk
	}
	return map[string]any{"ok": true, "call_pk": pk}, nil
}
