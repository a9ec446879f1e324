package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event names arriving from the provider.
const (
	EventContentStart    = "contentStart"
	EventTextOutput      = "textOutput"
	EventAudioOutput     = "audioOutput"
	EventToolUse         = "toolUse"
	EventContentEnd      = "contentEnd"
	EventCompletionStart = "completionStart"
	EventCompletionEnd   = "completionEnd"
	EventPromptEnd       = "promptEnd"
	EventUsage           = "usageEvent"
)

// ContentStartEvent opens a provider content block.
type ContentStartEvent struct {
	PromptName            string `json:"promptName"`
	ContentName           string `json:"contentName"`
	Type                  string `json:"type"`
	Role                  string `json:"role"`
	AdditionalModelFields string `json:"additionalModelFields"`
}

// Speculative reports whether the block carries speculative (display
// ahead of audio) text, signalled through additionalModelFields.
func (e *ContentStartEvent) Speculative() bool {
	if e.AdditionalModelFields == "" {
		return false
	}
	var fields struct {
		GenerationStage string `json:"generationStage"`
	}
	if err := json.Unmarshal([]byte(e.AdditionalModelFields), &fields); err != nil {
		return false
	}
	return strings.EqualFold(fields.GenerationStage, "SPECULATIVE")
}

// TextOutputEvent carries a transcript fragment.
type TextOutputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Role        string `json:"role"`
	Content     string `json:"content"`
}

// Interrupted reports whether this fragment is the barge-in marker
// rather than real transcript text.
func (e *TextOutputEvent) Interrupted() bool {
	return IsInterrupted(e.Content)
}

// AudioOutputEvent carries one base64 PCM chunk of synthesized speech.
type AudioOutputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ToolUseEvent asks the consumer to run a tool.
type ToolUseEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	ToolUseID   string `json:"toolUseId"`
	ToolName    string `json:"toolName"`
	Content     string `json:"content"` // JSON arguments as a string
}

// Arguments parses the tool arguments. Malformed content yields an
// empty argument map rather than an error.
func (e *ToolUseEvent) Arguments() map[string]any {
	args := make(map[string]any)
	if strings.TrimSpace(e.Content) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(e.Content), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// ContentEndEvent closes a provider content block.
type ContentEndEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Type        string `json:"type"`
	StopReason  string `json:"stopReason"`
}

// ServerEvent is one decoded provider frame. Exactly one payload field
// matching Type is set; unrecognized events keep Type and Raw only.
type ServerEvent struct {
	Type string
	Raw  json.RawMessage

	ContentStart *ContentStartEvent
	TextOutput   *TextOutputEvent
	AudioOutput  *AudioOutputEvent
	ToolUse      *ToolUseEvent
	ContentEnd   *ContentEndEvent
}

// Decode parses one provider frame. Frames with no event envelope are
// an error; unknown event names decode to a bare ServerEvent so the
// consumer can ignore them.
func Decode(raw []byte) (*ServerEvent, error) {
	var env struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode provider frame: %w", err)
	}
	if len(env.Event) == 0 {
		return nil, fmt.Errorf("provider frame has no event")
	}

	// A frame carries a single event.
	var name string
	var payload json.RawMessage
	for k, v := range env.Event {
		name, payload = k, v
		break
	}

	ev := &ServerEvent{Type: name, Raw: payload}
	switch name {
	case EventContentStart:
		ev.ContentStart = &ContentStartEvent{}
		if err := json.Unmarshal(payload, ev.ContentStart); err != nil {
			return nil, fmt.Errorf("decode contentStart: %w", err)
		}
	case EventTextOutput:
		ev.TextOutput = &TextOutputEvent{}
		if err := json.Unmarshal(payload, ev.TextOutput); err != nil {
			return nil, fmt.Errorf("decode textOutput: %w", err)
		}
	case EventAudioOutput:
		ev.AudioOutput = &AudioOutputEvent{}
		if err := json.Unmarshal(payload, ev.AudioOutput); err != nil {
			return nil, fmt.Errorf("decode audioOutput: %w", err)
		}
	case EventToolUse:
		ev.ToolUse = &ToolUseEvent{}
		if err := json.Unmarshal(payload, ev.ToolUse); err != nil {
			return nil, fmt.Errorf("decode toolUse: %w", err)
		}
	case EventContentEnd:
		ev.ContentEnd = &ContentEndEvent{}
		if err := json.Unmarshal(payload, ev.ContentEnd); err != nil {
			return nil, fmt.Errorf("decode contentEnd: %w", err)
		}
	}
	return ev, nil
}
