package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/warehouse"
)

// HCPDirectory is the warehouse lookup surface the tool needs.
type HCPDirectory interface {
	FetchHCPByName(ctx context.Context, name string) (*warehouse.HCP, error)
}

// StaticHCPs is the built-in account fallback used when the warehouse
// is down or unconfigured.
var StaticHCPs = map[string]string{
	"Dr. William Harper":    "0013K000013ez2RQAQ",
	"Dr. Susan Chen":        "0013K000013ez2SQAQ",
	"Dr. Miguel Alvarez":    "0013K000013ez2TQAQ",
	"Dr. Priya Nair":        "0013K000013ez2UQAQ",
	"Dr. James O'Connell":   "0013K000013ez2VQAQ",
	"Dr. Emily Rothstein":   "0013K000013ez2WQAQ",
	"Dr. David Kim":         "0013K000013ez2XQAQ",
	"Dr. Laura Mitchell":    "0013K000013ez2YQAQ",
	"Dr. Ahmed Hassan":      "0013K000013ez2ZQAQ",
	"Dr. Rachel Goldberg":   "0013K000013ez2aQAA",
	"Dr. Thomas Bennett":    "0013K000013ez2bQAA",
	"Dr. Maria Santos":      "0013K000013ez2cQAA",
	"Dr. Kevin Wu":          "0013K000013ez2dQAA",
	"Dr. Angela Foster":     "0013K000013ez2eQAA",
	"Dr. Robert Ellison":    "0013K000013ez2fQAA",
	"Dr. Jennifer Caldwell": "0013K000013ez2gQAA",
}

// LookupHCPTool resolves an HCP name to a CRM account, trying the
// warehouse first and falling back to the static table.
type LookupHCPTool struct {
	Directory HCPDirectory // nil means static only
	Conv      *conversation.Store
	Logger    *slog.Logger
}

func (t *LookupHCPTool) Name() string { return "lookupHcpTool" }

func (t *LookupHCPTool) Description() string {
	return "Look up a healthcare professional by name and resolve their CRM account id and affiliated organization."
}

func (t *LookupHCPTool) InputSchema() string {
	return `{"type":"object","properties":{"name":{"type":"string","description":"The HCP's name as spoken by the rep"}},"required":["name"]}`
}

func (t *LookupHCPTool) Execute(ctx context.Context, sessionID string, args map[string]any) (map[string]any, error) {
	name := strings.TrimSpace(stringArg(args, "name"))
	if len(name) < 2 {
		return nil, fmt.Errorf("name must be at least 2 characters")
	}

	if t.Directory != nil {
		hcp, err := t.Directory.FetchHCPByName(ctx, name)
		if err == nil {
			t.recordSlots(sessionID, hcp.Name, hcp.HCPID)
			return map[string]any{
				"found":    true,
				"name":     hcp.Name,
				"hcp_id":   hcp.HCPID,
				"hco_id":   hcp.HCOID,
				"hco_name": hcp.HCOName,
				"source":   "redshift",
			}, nil
		}
		if t.Logger != nil && !errors.Is(err, warehouse.ErrNotFound) {
			t.Logger.Warn("warehouse hcp lookup failed, using static table",
				"session_id", sessionID, "error", err)
		}
	}

	if matched, id, ok := staticLookup(name); ok {
		t.recordSlots(sessionID, matched, id)
		return map[string]any{
			"found":  true,
			"name":   matched,
			"hcp_id": id,
			"source": "static",
		}, nil
	}

	return map[string]any{
		"found":  false,
		"name":   name,
		"source": nil,
	}, nil
}

func (t *LookupHCPTool) recordSlots(sessionID, name, id string) {
	if t.Conv == nil {
		return
	}
	state := t.Conv.GetOrCreate(sessionID)
	state.Set(conversation.SlotHCPName, name)
	state.Set(conversation.SlotHCPID, id)
}

// staticLookup matches case-insensitively: exact first, then substring
// containment in either direction.
func staticLookup(name string) (string, string, bool) {
	lowered := strings.ToLower(name)
	for known, id := range StaticHCPs {
		if strings.ToLower(known) == lowered {
			return known, id, true
		}
	}
	for known, id := range StaticHCPs {
		kl := strings.ToLower(known)
		if strings.Contains(kl, lowered) || strings.Contains(lowered, kl) {
			return known, id, true
		}
	}
	return "", "", false
}
