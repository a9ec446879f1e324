package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
)

func TestEmit_PostsWrappedEvent(t *testing.T) {
	var gotSecret string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-N8N-Secret")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "hunter2", 5*time.Second, discardLogger())
	err := e.Emit(context.Background(), "call.saved", map[string]any{"call_pk": 42})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if gotSecret != "hunter2" {
		t.Fatalf("secret header = %q", gotSecret)
	}
	if gotBody["eventType"] != "call.saved" {
		t.Fatalf("eventType = %v", gotBody["eventType"])
	}
	payload, _ := gotBody["payload"].(map[string]any)
	if payload["call_pk"] != float64(42) {
		t.Fatalf("payload = %v", payload)
	}
	if _, err := time.Parse(time.RFC3339, gotBody["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp = %v: %v", gotBody["timestamp"], err)
	}
}

func TestEmit_UnconfiguredSkips(t *testing.T) {
	e := NewEmitter("", "", time.Second, discardLogger())
	if err := e.Emit(context.Background(), "call.saved", nil); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
}

func TestEmit_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "", 5*time.Second, discardLogger())
	err := e.Emit(context.Background(), "call.saved", nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("Emit() error = %v, want status 502", err)
	}
}

func TestEmitEventTool_SkipsWhenUnconfigured(t *testing.T) {
	tool := &EmitEventTool{Emitter: NewEmitter("", "", time.Second, discardLogger())}
	out, err := tool.Execute(context.Background(), "s1", map[string]any{"event_type": "crm.sync"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out["ok"] != true || out["skipped"] != true {
		t.Fatalf("result = %v", out)
	}
}

func TestEmitEventTool_RequiresEventType(t *testing.T) {
	tool := &EmitEventTool{}
	if _, err := tool.Execute(context.Background(), "s1", nil); err == nil {
		t.Fatal("expected error for missing event_type")
	}
}

func TestCreateFollowUpTask_StoresAndEmits(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer srv.Close()

	conv := conversation.NewStore()
	tool := &CreateFollowUpTaskTool{
		Emitter: NewEmitter(srv.URL, "", 5*time.Second, discardLogger()),
		Conv:    conv,
	}
	out, err := tool.Execute(context.Background(), "s1", map[string]any{
		"task_type":   "sample_drop",
		"description": "Drop off Cardiofix samples",
		"due_date":    "2026-09-05",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	taskID, _ := out["external_task_id"].(string)
	if !strings.HasPrefix(taskID, "TASK_") || len(taskID) != len("TASK_")+8 {
		t.Fatalf("task_id = %q", taskID)
	}

	state, ok := conv.Get("s1")
	if !ok || state.FollowUpTask == nil {
		t.Fatal("follow-up task not stored")
	}
	if state.FollowUpTask.Description != "Drop off Cardiofix samples" {
		t.Fatalf("task = %+v", state.FollowUpTask)
	}
	if gotBody["eventType"] != "task.created" {
		t.Fatalf("eventType = %v", gotBody["eventType"])
	}
}

func TestCreateFollowUpTask_RequiresDescription(t *testing.T) {
	tool := &CreateFollowUpTaskTool{}
	if _, err := tool.Execute(context.Background(), "s1", map[string]any{"task_type": "callback"}); err == nil {
		t.Fatal("expected error for missing description")
	}
}
