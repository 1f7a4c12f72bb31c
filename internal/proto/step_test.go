package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureIDs(t *testing.T) {
	in := []Message{
		{ID: "keep", Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "again"},
	}

	out := EnsureIDs(in)
	require.Len(t, out, 3)
	require.Equal(t, "keep", out[0].ID)
	require.NotEmpty(t, out[1].ID)
	require.NotEmpty(t, out[2].ID)
	require.NotEqual(t, out[1].ID, out[2].ID)

	// Content and order are preserved and the input is not mutated.
	require.Equal(t, "hello", out[1].Content)
	require.Equal(t, "again", out[2].Content)
	require.Empty(t, in[1].ID)
	require.Empty(t, in[2].ID)

	require.Empty(t, EnsureIDs(nil))
}

func TestAppendResponseMessages(t *testing.T) {
	convo := []Message{{ID: "1", Role: RoleUser, Content: "q"}}
	convo = AppendResponseMessages(convo, []Message{
		{Role: RoleAssistant, Content: "a"},
		{ID: "t", Role: RoleTool},
	})
	require.Len(t, convo, 3)
	require.Equal(t, "1", convo[0].ID)
	require.NotEmpty(t, convo[1].ID)
	require.Equal(t, "t", convo[2].ID)
}

func TestTrailingMessageID(t *testing.T) {
	msgs := []Message{
		{ID: "a", Role: RoleAssistant},
		{ID: "b", Role: RoleTool},
		{ID: "c", Role: RoleAssistant},
	}
	require.Equal(t, "c", TrailingMessageID(FilterRole(msgs, RoleAssistant)))
	require.Equal(t, "b", TrailingMessageID(FilterRole(msgs, RoleTool)))
	require.Empty(t, TrailingMessageID(FilterRole(msgs, RoleUser)))
}

func TestParseFinishReason(t *testing.T) {
	for in, want := range map[string]FinishReason{
		"stop":           FinishStop,
		"content-filter": FinishContentFilter,
		"error":          FinishError,
		"length":         FinishLength,
		"tool-calls":     FinishToolCalls,
		"other":          FinishOther,
		"unknown":        FinishUnknown,
		"":               FinishUnknown,
		"something-new":  FinishUnknown,
	} {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, ParseFinishReason(in))
		})
	}
}

func TestConversationString(t *testing.T) {
	out := Conversation([]Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "add a row"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Function: Function{Name: "sheets_add_row"}}}},
		{Role: RoleTool, ToolResults: []ToolResult{{ToolCallID: "1", Name: "sheets_add_row", Output: "denied", IsError: true}}},
		{Role: RoleAssistant, Content: "done"},
	}).String()

	require.NotContains(t, out, "sys")
	require.Contains(t, out, "**Prompt**: add a row")
	require.Contains(t, out, "> Ran tool: `sheets_add_row`")
	require.Contains(t, out, "> Tool `sheets_add_row` failed: denied")
	require.Contains(t, out, "**Assistant**: done")
}
