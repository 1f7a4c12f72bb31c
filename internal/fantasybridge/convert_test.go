package fantasybridge

import (
	"testing"

	"charm.land/fantasy"
	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/tool"
	"github.com/stretchr/testify/require"
)

func TestToFantasyPrompt(t *testing.T) {
	messages := []proto.Message{
		{Role: proto.RoleUser, Content: "hello"},
		{Role: proto.RoleAssistant, Content: "calling tool", Reasoning: "hidden", ToolCalls: []proto.ToolCall{{
			ID: "call_1",
			Function: proto.Function{
				Name:      "srv_tool",
				Arguments: []byte(`{"x":1}`),
			},
		}}},
		{Role: proto.RoleTool, ToolResults: []proto.ToolResult{
			{ToolCallID: "call_1", Name: "srv_tool", Output: "ok"},
			{ToolCallID: "call_2", Name: "srv_tool", Output: "boom", IsError: true},
		}},
		{Role: proto.RoleAssistant},
	}

	prompt := toFantasyPrompt("sys", messages)
	require.Len(t, prompt, 4)

	require.Equal(t, fantasy.MessageRoleSystem, prompt[0].Role)
	require.Equal(t, fantasy.MessageRoleUser, prompt[1].Role)
	require.Equal(t, fantasy.MessageRoleAssistant, prompt[2].Role)
	require.Equal(t, fantasy.MessageRoleTool, prompt[3].Role)

	require.Len(t, prompt[2].Content, 2)
	call, ok := fantasy.AsMessagePart[fantasy.ToolCallPart](prompt[2].Content[1])
	require.True(t, ok)
	require.Equal(t, "srv_tool", call.ToolName)
	require.JSONEq(t, `{"x":1}`, call.Input)

	require.Len(t, prompt[3].Content, 2)
	resultPart, ok := fantasy.AsMessagePart[fantasy.ToolResultPart](prompt[3].Content[0])
	require.True(t, ok)
	text, textOK := fantasy.AsToolResultOutputType[fantasy.ToolResultOutputContentText](resultPart.Output)
	require.True(t, textOK)
	require.Equal(t, "ok", text.Text)

	errPart, ok := fantasy.AsMessagePart[fantasy.ToolResultPart](prompt[3].Content[1])
	require.True(t, ok)
	errOutput, errOK := fantasy.AsToolResultOutputType[fantasy.ToolResultOutputContentError](errPart.Output)
	require.True(t, errOK)
	require.Equal(t, "boom", errOutput.Error.Error())
}

func TestFromToolSet(t *testing.T) {
	tools := fromToolSet(tool.Set{
		"server_search": {
			Name:        "server_search",
			Description: "search docs",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		},
		"alpha_ping": {Name: "alpha_ping"},
	})

	require.Len(t, tools, 2)
	first, ok := tools[0].(fantasy.FunctionTool)
	require.True(t, ok)
	require.Equal(t, "alpha_ping", first.Name)
	require.Equal(t, "object", first.InputSchema["type"])

	fn, ok := tools[1].(fantasy.FunctionTool)
	require.True(t, ok)
	require.Equal(t, "server_search", fn.Name)
	require.Equal(t, "search docs", fn.Description)
	require.Equal(t, []string{"query"}, fn.InputSchema["required"])
}
