// Package fantasybridge drives model calls through charm.land/fantasy and
// translates between conversation messages and Fantasy types.
package fantasybridge

import (
	"errors"

	"charm.land/fantasy"
	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/tool"
)

func textMessage(role fantasy.MessageRole, text string) fantasy.Message {
	return fantasy.Message{
		Role:    role,
		Content: []fantasy.MessagePart{fantasy.TextPart{Text: text}},
	}
}

// toFantasyPrompt converts a conversation into a prompt. Reasoning traces are
// never sent back to the model.
func toFantasyPrompt(system string, input []proto.Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input)+1)
	if system != "" {
		messages = append(messages, textMessage(fantasy.MessageRoleSystem, system))
	}

	for _, msg := range input {
		switch msg.Role {
		case proto.RoleSystem:
			messages = append(messages, textMessage(fantasy.MessageRoleSystem, msg.Content))
		case proto.RoleUser:
			messages = append(messages, textMessage(fantasy.MessageRoleUser, msg.Content))
		case proto.RoleAssistant:
			parts := make([]fantasy.MessagePart, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, fantasy.TextPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: call.ID,
					ToolName:   call.Function.Name,
					Input:      string(call.Function.Arguments),
				})
			}
			if len(parts) > 0 {
				messages = append(messages, fantasy.Message{
					Role:    fantasy.MessageRoleAssistant,
					Content: parts,
				})
			}
		case proto.RoleTool:
			parts := make([]fantasy.MessagePart, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				var output fantasy.ToolResultOutputContent = fantasy.ToolResultOutputContentText{Text: res.Output}
				if res.IsError {
					output = fantasy.ToolResultOutputContentError{Error: errors.New(res.Output)}
				}
				parts = append(parts, fantasy.ToolResultPart{
					ToolCallID: res.ToolCallID,
					Output:     output,
				})
			}
			if len(parts) > 0 {
				messages = append(messages, fantasy.Message{
					Role:    fantasy.MessageRoleTool,
					Content: parts,
				})
			}
		}
	}

	return messages
}

// fromToolSet declares every tool of set to the model, sorted by name.
func fromToolSet(set tool.Set) []fantasy.Tool {
	tools := make([]fantasy.Tool, 0, len(set))
	for _, name := range set.Names() {
		t := set[name]
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, fantasy.FunctionTool{
			Name:        name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return tools
}

func toolChoiceFor(set tool.Set) *fantasy.ToolChoice {
	if len(set) == 0 {
		return nil
	}
	choice := fantasy.ToolChoiceAuto
	return &choice
}
