package protocol

import (
	"encoding/json"
	"testing"
)

func eventPayload(t *testing.T, raw []byte, name string) map[string]any {
	t.Helper()
	var env struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	payload, ok := env.Event[name]
	if !ok {
		t.Fatalf("envelope missing %q: %s", name, raw)
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return out
}

func TestSessionStart_Shape(t *testing.T) {
	raw, err := SessionStart(InferenceConfig{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7})
	if err != nil {
		t.Fatalf("SessionStart() error = %v", err)
	}
	p := eventPayload(t, raw, "sessionStart")
	inf, ok := p["inferenceConfiguration"].(map[string]any)
	if !ok {
		t.Fatalf("missing inferenceConfiguration: %v", p)
	}
	if inf["maxTokens"] != float64(1024) || inf["topP"] != 0.9 || inf["temperature"] != 0.7 {
		t.Fatalf("inference config = %v", inf)
	}
}

func TestPromptStart_DeclaresToolsAndAudioFormat(t *testing.T) {
	raw, err := PromptStart("p1", AudioFormat{
		SampleRateHz: 24000, SampleSizeBits: 16, ChannelCount: 1, VoiceID: "matthew",
	}, []ToolSpec{
		{Name: "getDateTool", Description: "current date", InputSchema: `{"type":"object"}`},
	})
	if err != nil {
		t.Fatalf("PromptStart() error = %v", err)
	}
	p := eventPayload(t, raw, "promptStart")
	if p["promptName"] != "p1" {
		t.Fatalf("promptName = %v", p["promptName"])
	}
	audio := p["audioOutputConfiguration"].(map[string]any)
	if audio["sampleRateHertz"] != float64(24000) || audio["voiceId"] != "matthew" {
		t.Fatalf("audio config = %v", audio)
	}
	if audio["encoding"] != "base64" || audio["audioType"] != "SPEECH" {
		t.Fatalf("audio config = %v", audio)
	}
	toolCfg := p["toolConfiguration"].(map[string]any)
	tools := toolCfg["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v", tools)
	}
	spec := tools[0].(map[string]any)["toolSpec"].(map[string]any)
	if spec["name"] != "getDateTool" {
		t.Fatalf("toolSpec = %v", spec)
	}
	schema := spec["inputSchema"].(map[string]any)
	if schema["json"] != `{"type":"object"}` {
		t.Fatalf("inputSchema = %v", schema)
	}
}

func TestContentStartToolResult_ReferencesToolUse(t *testing.T) {
	raw, err := ContentStartToolResult("p1", "c9", "tu_42")
	if err != nil {
		t.Fatalf("ContentStartToolResult() error = %v", err)
	}
	p := eventPayload(t, raw, "contentStart")
	if p["type"] != ContentTypeTool || p["role"] != RoleTool {
		t.Fatalf("payload = %v", p)
	}
	if p["interactive"] != false {
		t.Fatalf("interactive = %v", p["interactive"])
	}
	cfg := p["toolResultInputConfiguration"].(map[string]any)
	if cfg["toolUseId"] != "tu_42" {
		t.Fatalf("toolUseId = %v", cfg["toolUseId"])
	}
}

func TestToolResult_ReEscapesJSON(t *testing.T) {
	raw, err := ToolResult("p1", "c9", map[string]any{"found": true, "hcp_id": "001"})
	if err != nil {
		t.Fatalf("ToolResult() error = %v", err)
	}
	p := eventPayload(t, raw, "toolResult")
	content, ok := p["content"].(string)
	if !ok {
		t.Fatalf("content must be a JSON string, got %T", p["content"])
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		t.Fatalf("content is not valid JSON: %v", err)
	}
	if decoded["found"] != true || decoded["hcp_id"] != "001" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestDecode_TextOutput(t *testing.T) {
	raw := []byte(`{"event":{"textOutput":{"promptName":"p1","role":"ASSISTANT","content":"hello"}}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Type != EventTextOutput || ev.TextOutput == nil {
		t.Fatalf("event = %+v", ev)
	}
	if ev.TextOutput.Content != "hello" || ev.TextOutput.Role != "ASSISTANT" {
		t.Fatalf("textOutput = %+v", ev.TextOutput)
	}
	if ev.TextOutput.Interrupted() {
		t.Fatal("plain text must not read as interrupted")
	}
}

func TestDecode_InterruptedMarker(t *testing.T) {
	raw := []byte(`{"event":{"textOutput":{"content":"{ \"interrupted\" : true }"}}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !ev.TextOutput.Interrupted() {
		t.Fatal("expected interrupted marker")
	}
}

func TestDecode_ToolUseArguments(t *testing.T) {
	raw := []byte(`{"event":{"toolUse":{"toolUseId":"tu_1","toolName":"lookupHcpTool","content":"{\"name\":\"Dr. Harper\"}"}}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.ToolUse.ToolName != "lookupHcpTool" {
		t.Fatalf("toolUse = %+v", ev.ToolUse)
	}
	args := ev.ToolUse.Arguments()
	if args["name"] != "Dr. Harper" {
		t.Fatalf("arguments = %v", args)
	}
}

func TestDecode_MalformedToolArgumentsAreEmpty(t *testing.T) {
	ev := &ToolUseEvent{Content: "{not json"}
	args := ev.Arguments()
	if len(args) != 0 {
		t.Fatalf("arguments = %v, want empty", args)
	}
}

func TestDecode_SpeculativeContentStart(t *testing.T) {
	raw := []byte(`{"event":{"contentStart":{"type":"TEXT","role":"ASSISTANT","additionalModelFields":"{\"generationStage\":\"SPECULATIVE\"}"}}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !ev.ContentStart.Speculative() {
		t.Fatal("expected speculative content start")
	}

	raw = []byte(`{"event":{"contentStart":{"type":"TEXT","additionalModelFields":"{\"generationStage\":\"FINAL\"}"}}}`)
	ev, err = Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.ContentStart.Speculative() {
		t.Fatal("FINAL stage must not read as speculative")
	}
}

func TestDecode_UnknownEventPassesThrough(t *testing.T) {
	raw := []byte(`{"event":{"usageEvent":{"totalTokens":12}}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Type != EventUsage {
		t.Fatalf("type = %q", ev.Type)
	}
}

func TestDecode_NoEventIsError(t *testing.T) {
	if _, err := Decode([]byte(`{"event":{}}`)); err == nil {
		t.Fatal("expected error for empty envelope")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}
