// Package stream carries incremental model output from a backend to the
// places that consume it.
package stream

import (
	"context"

	"github.com/dotcommander/connectchat/internal/proto"
)

// PartType identifies the kind of a Part.
type PartType string

// Part types.
const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
	PartFinish     PartType = "finish"
	PartError      PartType = "error"
	PartWarning    PartType = "warning"
)

// Part is one incremental event of a model step.
//
// Text carries the delta for text and reasoning parts, and the message for
// error and warning parts.
type Part struct {
	Type         PartType           `json:"type"`
	Text         string             `json:"text,omitempty"`
	ToolCallID   string             `json:"tool_call_id,omitempty"`
	ToolName     string             `json:"tool_name,omitempty"`
	Input        string             `json:"input,omitempty"`
	Output       string             `json:"output,omitempty"`
	IsError      bool               `json:"is_error,omitempty"`
	FinishReason proto.FinishReason `json:"finish_reason,omitempty"`
	Usage        *proto.Usage       `json:"usage,omitempty"`
}

// Client starts streaming model calls.
type Client interface {
	Request(ctx context.Context, request proto.Request) (*Step, error)
}
