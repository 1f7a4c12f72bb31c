package proto

import (
	"slices"

	"github.com/google/uuid"
)

// FinishReason is why a model call stopped generating.
//
// Values match the ones reported by the fantasy providers.
type FinishReason string

// Finish reasons.
const (
	FinishStop          FinishReason = "stop"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

// ParseFinishReason maps s to a known FinishReason, falling back to
// FinishUnknown.
func ParseFinishReason(s string) FinishReason {
	switch r := FinishReason(s); r {
	case FinishStop, FinishContentFilter, FinishError, FinishLength,
		FinishToolCalls, FinishOther, FinishUnknown:
		return r
	default:
		return FinishUnknown
	}
}

// StepResult is the outcome of one model call.
type StepResult struct {
	Step         int          `json:"step"`
	FinishReason FinishReason `json:"finish_reason"`
	Messages     []Message    `json:"messages,omitempty"`
	Usage        Usage        `json:"usage"`
	Warnings     []string     `json:"warnings,omitempty"`
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}

// EnsureIDs returns a copy of msgs where every message without an ID has been
// assigned a fresh one. The input slice is left untouched.
func EnsureIDs(msgs []Message) []Message {
	out := slices.Clone(msgs)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = NewID()
		}
	}
	return out
}

// AppendResponseMessages appends the messages produced by a step to the
// conversation, assigning IDs where missing.
func AppendResponseMessages(conversation, response []Message) []Message {
	return append(conversation, EnsureIDs(response)...)
}

// FilterRole returns the messages authored by role, in order.
func FilterRole(msgs []Message, role Role) []Message {
	var out []Message
	for _, msg := range msgs {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}

// TrailingMessageID returns the ID of the last message, or "" if there is
// none.
func TrailingMessageID(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}
