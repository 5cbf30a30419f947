package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireContent is the JSON wire shape for Content, discriminated by "kind".
type wireContent struct {
	Kind              ContentKind     `json:"kind"`
	Text              string          `json:"text,omitempty"`
	ThinkingSignature string          `json:"thinkingSignature,omitempty"`
	ImageBytes        []byte          `json:"imageBytes,omitempty"`
	ImageMediaType    string          `json:"imageMediaType,omitempty"`
	ToolCallID        string          `json:"toolCallId,omitempty"`
	ToolCallName      string          `json:"toolCallName,omitempty"`
	ToolCallArgs      json.RawMessage `json:"toolCallArgs,omitempty"`
}

// MarshalJSON implements json.Marshaler for Content.
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireContent{
		Kind:              c.Kind,
		Text:              c.Text,
		ThinkingSignature: c.ThinkingSignature,
		ImageBytes:        c.ImageBytes,
		ImageMediaType:    c.ImageMediaType,
		ToolCallID:        c.ToolCallID,
		ToolCallName:      c.ToolCallName,
		ToolCallArgs:      c.ToolCallArgs,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Content. Unknown fields are
// silently ignored, so older saves stay loadable across format additions.
func (c *Content) UnmarshalJSON(data []byte) error {
	var w wireContent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Content{
		Kind:              w.Kind,
		Text:              w.Text,
		ThinkingSignature: w.ThinkingSignature,
		ImageBytes:        w.ImageBytes,
		ImageMediaType:    w.ImageMediaType,
		ToolCallID:        w.ToolCallID,
		ToolCallName:      w.ToolCallName,
		ToolCallArgs:      w.ToolCallArgs,
	}
	return nil
}

// wireMessage is the JSON wire shape for AgentMessage, discriminated by
// "role" ∈ {"user", "assistant", "toolResult", "extension"}.
type wireMessage struct {
	Role       string          `json:"role"`
	Blocks     []Content       `json:"blocks,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	StopReason StopReason      `json:"stopReason,omitempty"`
	ModelID    string          `json:"modelId,omitempty"`
	ProviderID string          `json:"providerId,omitempty"`
	Usage      Usage           `json:"usage,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	ExtRole    string          `json:"extRole,omitempty"`
	ExtKind    string          `json:"extKind,omitempty"`
	ExtData    json.RawMessage `json:"extData,omitempty"`
}

// MarshalJSON implements json.Marshaler for AgentMessage.
func (am AgentMessage) MarshalJSON() ([]byte, error) {
	if am.IsExtension {
		return json.Marshal(wireMessage{
			Role:    "extension",
			ExtRole: am.ExtRole,
			ExtKind: am.ExtKind,
			ExtData: am.ExtData,
		})
	}
	m := am.Llm
	return json.Marshal(wireMessage{
		Role:       string(m.Role),
		Blocks:     m.Blocks,
		Timestamp:  m.Timestamp,
		StopReason: m.StopReason,
		ModelID:    m.ModelID,
		ProviderID: m.ProviderID,
		Usage:      m.Usage,
		ErrorText:  m.ErrorText,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		IsError:    m.IsError,
	})
}

// UnmarshalJSON implements json.Unmarshaler for AgentMessage.
func (am *AgentMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Role == "extension" {
		*am = AgentMessage{
			IsExtension: true,
			ExtRole:     w.ExtRole,
			ExtKind:     w.ExtKind,
			ExtData:     w.ExtData,
		}
		return nil
	}
	role := Role(w.Role)
	switch role {
	case RoleUser, RoleAssistant, RoleToolResult:
	default:
		return fmt.Errorf("message: unknown role %q", w.Role)
	}
	*am = AgentMessage{Llm: Message{
		Role:       role,
		Blocks:     w.Blocks,
		Timestamp:  w.Timestamp,
		StopReason: w.StopReason,
		ModelID:    w.ModelID,
		ProviderID: w.ProviderID,
		Usage:      w.Usage,
		ErrorText:  w.ErrorText,
		ToolCallID: w.ToolCallID,
		ToolName:   w.ToolName,
		IsError:    w.IsError,
	}}
	return nil
}

// SaveHistory returns the canonical JSON array representation of history.
func SaveHistory(history []AgentMessage) ([]byte, error) {
	return json.MarshalIndent(history, "", "  ")
}

// RestoreHistory parses the JSON produced by SaveHistory.
func RestoreHistory(data []byte) ([]AgentMessage, error) {
	var history []AgentMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
