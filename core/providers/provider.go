// Package providers adapts hosted language models to the single call the
// conversation runtime needs: given instructions, history and tools,
// produce a reply or a tool call.
package providers

import (
	"context"
)

// Generator produces one response turn.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

type Request struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`

	// SystemPrompt is the persona's fixed instructions.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// TurnInstructions steer only this turn, e.g. the opening greeting.
	TurnInstructions string `json:"turn_instructions,omitempty"`

	Tools    []Tool         `json:"tools,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Response struct {
	Content          string         `json:"content"`
	Model            string         `json:"model"`
	StopReason       StopReason     `json:"stop_reason"`
	Usage            Usage          `json:"usage"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ProviderMetadata map[string]any `json:"provider_metadata,omitempty"`
}

type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonError        StopReason = "error"
)

type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	TotalTokens     int `json:"total_tokens"`
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`
}
