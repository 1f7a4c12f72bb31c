// Package proto holds the conversation data model shared by the orchestrator,
// the model backends and the outer surfaces.
package proto

import (
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/connectchat/internal/tool"
)

// Role is the author of a message.
type Role string

// Roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Function is the name and raw JSON arguments of a tool invocation.
type Function struct {
	Name      string `json:"name"`
	Arguments []byte `json:"arguments,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string   `json:"id"`
	Function Function `json:"function"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Output     string `json:"output"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID          string       `json:"id,omitempty"`
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	Reasoning   string       `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitzero"`
}

// Request is a single streaming model call.
type Request struct {
	Messages []Message
	Tools    tool.Set

	API                 string
	Model               string
	System              string
	User                string
	Temperature         *float64
	TopP                *float64
	TopK                *int64
	MaxTokens           *int64
	MaxCompletionTokens *int64
}

// Usage is the token accounting reported at the end of a step.
type Usage struct {
	InputTokens     int64 `json:"input_tokens,omitempty"`
	OutputTokens    int64 `json:"output_tokens,omitempty"`
	TotalTokens     int64 `json:"total_tokens,omitempty"`
	ReasoningTokens int64 `json:"reasoning_tokens,omitempty"`
}

// Conversation is an ordered message history.
type Conversation []Message

func (cc Conversation) String() string {
	var sb strings.Builder
	for _, msg := range cc {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleUser:
			sb.WriteString("**Prompt**: ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		case RoleAssistant:
			if msg.Content != "" {
				sb.WriteString("**Assistant**: ")
				sb.WriteString(msg.Content)
				sb.WriteString("\n\n")
			}
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(&sb, "> Ran tool: `%s`\n\n", call.Function.Name)
			}
		case RoleTool:
			for _, res := range msg.ToolResults {
				if res.IsError {
					fmt.Fprintf(&sb, "> Tool `%s` failed: %s\n\n", res.Name, res.Output)
				}
			}
		}
	}
	return sb.String()
}
