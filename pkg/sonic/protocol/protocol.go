// Package protocol defines the JSON event envelope spoken with the
// speech-to-speech provider. Every frame is {"event": {<name>: {...}}};
// builders here produce consumer-bound frames and Decode parses
// provider-bound ones into typed events.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Roles and content types used on the wire.
const (
	RoleSystem    = "SYSTEM"
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleTool      = "TOOL"

	ContentTypeText  = "TEXT"
	ContentTypeAudio = "AUDIO"
	ContentTypeTool  = "TOOL"
)

// InterruptedMarker appears inside a textOutput when the model was
// barged in on mid-utterance.
const InterruptedMarker = `{ "interrupted" : true }`

// IsInterrupted reports whether a textOutput content carries the
// barge-in marker.
func IsInterrupted(content string) bool {
	return strings.Contains(content, InterruptedMarker)
}

type envelope struct {
	Event any `json:"event"`
}

func wrap(name string, payload any) ([]byte, error) {
	b, err := json.Marshal(envelope{Event: map[string]any{name: payload}})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", name, err)
	}
	return b, nil
}

// InferenceConfig is sent at session start.
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// AudioFormat describes a PCM stream on either direction.
type AudioFormat struct {
	SampleRateHz   int
	SampleSizeBits int
	ChannelCount   int
	VoiceID        string // output only
}

// ToolSpec declares one tool to the provider.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema string // JSON Schema as a string
}

// SessionStart builds the opening frame.
func SessionStart(cfg InferenceConfig) ([]byte, error) {
	return wrap("sessionStart", map[string]any{
		"inferenceConfiguration": cfg,
	})
}

// PromptStart declares the prompt, the output formats, and the tool set.
func PromptStart(promptName string, out AudioFormat, tools []ToolSpec) ([]byte, error) {
	specs := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, map[string]any{
			"toolSpec": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"inputSchema": map[string]any{"json": t.InputSchema},
			},
		})
	}
	payload := map[string]any{
		"promptName": promptName,
		"textOutputConfiguration": map[string]any{
			"mediaType": "text/plain",
		},
		"audioOutputConfiguration": map[string]any{
			"mediaType":       "audio/lpcm",
			"sampleRateHertz": out.SampleRateHz,
			"sampleSizeBits":  out.SampleSizeBits,
			"channelCount":    out.ChannelCount,
			"voiceId":         out.VoiceID,
			"encoding":        "base64",
			"audioType":       "SPEECH",
		},
		"toolUseOutputConfiguration": map[string]any{
			"mediaType": "application/json",
		},
	}
	if len(specs) > 0 {
		payload["toolConfiguration"] = map[string]any{"tools": specs}
	}
	return wrap("promptStart", payload)
}

// ContentStartText opens a text content block.
func ContentStartText(promptName, contentName, role string, interactive bool) ([]byte, error) {
	return wrap("contentStart", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
		"type":        ContentTypeText,
		"interactive": interactive,
		"role":        role,
		"textInputConfiguration": map[string]any{
			"mediaType": "text/plain",
		},
	})
}

// TextInput sends text inside an open text content block.
func TextInput(promptName, contentName, content string) ([]byte, error) {
	return wrap("textInput", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
		"content":     content,
	})
}

// ContentStartAudio opens the user audio content block.
func ContentStartAudio(promptName, contentName string, in AudioFormat) ([]byte, error) {
	return wrap("contentStart", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
		"type":        ContentTypeAudio,
		"interactive": true,
		"role":        RoleUser,
		"audioInputConfiguration": map[string]any{
			"mediaType":       "audio/lpcm",
			"sampleRateHertz": in.SampleRateHz,
			"sampleSizeBits":  in.SampleSizeBits,
			"channelCount":    in.ChannelCount,
			"audioType":       "SPEECH",
			"encoding":        "base64",
		},
	})
}

// AudioInput sends one base64 PCM chunk.
func AudioInput(promptName, contentName, b64 string) ([]byte, error) {
	return wrap("audioInput", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
		"content":     b64,
	})
}

// ContentStartToolResult opens the tool-result content block answering
// the given toolUseId.
func ContentStartToolResult(promptName, contentName, toolUseID string) ([]byte, error) {
	return wrap("contentStart", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
		"type":        ContentTypeTool,
		"role":        RoleTool,
		"interactive": false,
		"toolResultInputConfiguration": map[string]any{
			"toolUseId": toolUseID,
			"type":      ContentTypeText,
			"textInputConfiguration": map[string]any{
				"mediaType": "text/plain",
			},
		},
	})
}

// ToolResult sends the tool output. result is marshalled and carried as
// a JSON string, the shape the provider expects.
func ToolResult(promptName, contentName string, result any) ([]byte, error) {
	content, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return wrap("toolResult", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
		"content":     string(content),
	})
}

// ContentEnd closes a content block.
func ContentEnd(promptName, contentName string) ([]byte, error) {
	return wrap("contentEnd", map[string]any{
		"promptName":  promptName,
		"contentName": contentName,
	})
}

// PromptEnd closes the prompt.
func PromptEnd(promptName string) ([]byte, error) {
	return wrap("promptEnd", map[string]any{
		"promptName": promptName,
	})
}

// SessionEnd closes the session.
func SessionEnd() ([]byte, error) {
	return wrap("sessionEnd", map[string]any{})
}
