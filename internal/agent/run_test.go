package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/stream"
	"github.com/dotcommander/connectchat/internal/tool"
)

// scriptedStep is what fakeClient produces for one model call.
type scriptedStep struct {
	parts  []stream.Part
	result proto.StepResult
	err    error
}

type fakeClient struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []proto.Request
	failWith error
}

func (c *fakeClient) Request(_ context.Context, req proto.Request) (*stream.Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return nil, c.failWith
	}
	c.requests = append(c.requests, req)

	script := c.steps[min(len(c.requests), len(c.steps))-1]
	st := stream.NewStep(nil)
	go func() {
		for _, p := range script.parts {
			st.Send(p)
		}
		st.Finish(script.result, script.err)
	}()
	return st, nil
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type recordingSink struct {
	mu    sync.Mutex
	parts []stream.Part
	err   error
}

func (s *recordingSink) Write(p stream.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.parts = append(s.parts, p)
	return nil
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for _, p := range s.parts {
		if p.Type == stream.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func pendingTools(content string) scriptedStep {
	return scriptedStep{
		parts: []stream.Part{{Type: stream.PartText, Text: content}},
		result: proto.StepResult{
			FinishReason: proto.FinishToolCalls,
			Messages: []proto.Message{
				{Role: proto.RoleAssistant, Content: content, ToolCalls: []proto.ToolCall{{ID: "c", Function: proto.Function{Name: "t"}}}},
				{Role: proto.RoleTool, ToolResults: []proto.ToolResult{{ToolCallID: "c", Name: "t", Output: "ok"}}},
			},
		},
	}
}

func TestRunScenario(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{
		parts: []stream.Part{
			{Type: stream.PartText, Text: "4"},
			{Type: stream.PartFinish, FinishReason: proto.FinishStop},
		},
		result: proto.StepResult{
			FinishReason: proto.FinishStop,
			Messages:     []proto.Message{{Role: proto.RoleAssistant, Content: "4"}},
		},
	}}}
	sink := &recordingSink{}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "What's 2+2?"}}

	var callbacks int
	err := Run(t.Context(), client, sink, &conversation, nil,
		WithLogger(quietLogger()),
		WithOnStepComplete(func(context.Context, proto.StepResult) error {
			callbacks++
			return nil
		}),
	)
	require.NoError(t, err)

	require.Len(t, conversation, 2)
	require.Equal(t, "What's 2+2?", conversation[0].Content)
	require.Equal(t, proto.RoleAssistant, conversation[1].Role)
	require.Equal(t, "4", conversation[1].Content)
	require.Equal(t, "4", sink.text())
	require.Equal(t, 1, client.calls())
	require.Equal(t, 1, callbacks)
}

func TestRunAssignsIDs(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{
		result: proto.StepResult{FinishReason: proto.FinishStop},
	}}}
	conversation := []proto.Message{
		{ID: "existing", Role: proto.RoleUser, Content: "a"},
		{Role: proto.RoleAssistant, Content: "b"},
		{Role: proto.RoleUser, Content: "c"},
	}

	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil, WithLogger(quietLogger())))

	sent := client.requests[0].Messages
	require.Len(t, sent, 3)
	require.Equal(t, "existing", sent[0].ID)
	require.NotEmpty(t, sent[1].ID)
	require.NotEmpty(t, sent[2].ID)
	require.NotEqual(t, sent[1].ID, sent[2].ID)
	require.Equal(t, sent, conversation)
}

func TestRunStopsOnStop(t *testing.T) {
	for _, reason := range []proto.FinishReason{proto.FinishStop, proto.FinishContentFilter} {
		t.Run(string(reason), func(t *testing.T) {
			client := &fakeClient{steps: []scriptedStep{{
				result: proto.StepResult{
					FinishReason: reason,
					Messages:     []proto.Message{{Role: proto.RoleAssistant, Content: "done"}},
				},
			}}}
			conversation := []proto.Message{{Role: proto.RoleUser, Content: "hi"}}
			require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
				WithStepLimit(5), WithLogger(quietLogger())))
			require.Equal(t, 1, client.calls())
			require.Len(t, conversation, 2)
		})
	}
}

func TestRunStopWithoutAssistantMessage(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{result: proto.StepResult{FinishReason: proto.FinishStop}}}}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "hi"}}

	var callbacks int
	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
		WithStepLimit(5), WithLogger(quietLogger()),
		WithOnStepComplete(func(context.Context, proto.StepResult) error {
			callbacks++
			return nil
		}),
	))
	require.Equal(t, 1, client.calls())
	require.Len(t, conversation, 1)
	require.Equal(t, 1, callbacks)
}

func TestRunStepLimit(t *testing.T) {
	for _, reason := range []proto.FinishReason{
		proto.FinishToolCalls, proto.FinishLength, proto.FinishOther, proto.FinishUnknown,
	} {
		t.Run(string(reason), func(t *testing.T) {
			step := pendingTools("working ")
			step.result.FinishReason = reason
			client := &fakeClient{steps: []scriptedStep{step}}
			conversation := []proto.Message{{Role: proto.RoleUser, Content: "go"}}

			var seen []int
			require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
				WithStepLimit(3),
				WithLogger(quietLogger()),
				WithOnStepComplete(func(_ context.Context, r proto.StepResult) error {
					seen = append(seen, r.Step)
					return nil
				}),
			))
			require.Equal(t, 3, client.calls())
			require.Equal(t, []int{0, 1, 2}, seen)
			require.Len(t, conversation, 1+3*2)

			// Each call sees everything appended by the previous ones.
			require.Len(t, client.requests[1].Messages, 3)
			require.Len(t, client.requests[2].Messages, 5)
		})
	}
}

func TestRunStepLimitBelowOne(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{pendingTools("x")}}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "go"}}
	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
		WithStepLimit(0), WithLogger(quietLogger())))
	require.Equal(t, 1, client.calls())
}

func TestRunErrorKeepsPartialProgress(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{
		parts: []stream.Part{
			{Type: stream.PartText, Text: "partial "},
			{Type: stream.PartError, Text: "overloaded"},
		},
		result: proto.StepResult{
			FinishReason: proto.FinishError,
			Messages: []proto.Message{
				{Role: proto.RoleAssistant, Content: "partial"},
				{Role: proto.RoleTool, ToolResults: []proto.ToolResult{{ToolCallID: "c", Output: "x"}}},
			},
		},
	}}}
	sink := &recordingSink{}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "hi"}}

	var callbacks int
	require.NoError(t, Run(t.Context(), client, sink, &conversation, nil,
		WithStepLimit(4),
		WithLogger(quietLogger()),
		WithOnStepComplete(func(context.Context, proto.StepResult) error {
			callbacks++
			return errors.New("callback broke")
		}),
	))

	require.Equal(t, 1, client.calls())
	require.Len(t, conversation, 3)
	require.Equal(t, "partial", conversation[1].Content)
	require.Equal(t, 1, callbacks)
	require.Equal(t, stream.PartError, sink.parts[len(sink.parts)-1].Type)
}

func TestRunErrorWithoutMessages(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{
		result: proto.StepResult{FinishReason: proto.FinishError},
	}}}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "hi"}}
	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
		WithStepLimit(2), WithLogger(quietLogger())))
	require.Len(t, conversation, 1)
	require.Equal(t, 1, client.calls())
}

func TestRunMissingAssistantMessage(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{
		result: proto.StepResult{
			FinishReason: proto.FinishToolCalls,
			Messages: []proto.Message{
				{Role: proto.RoleTool, ToolResults: []proto.ToolResult{{ToolCallID: "c", Output: "x"}}},
			},
		},
	}}}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "hi"}}

	var callbacks int
	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
		WithStepLimit(3),
		WithLogger(quietLogger()),
		WithOnStepComplete(func(context.Context, proto.StepResult) error {
			callbacks++
			return nil
		}),
	))
	require.Equal(t, 1, client.calls())
	require.Len(t, conversation, 1)
	require.Zero(t, callbacks)
}

func TestRunCallbackIsolation(t *testing.T) {
	run := func(cb StepCallback) []proto.Message {
		client := &fakeClient{steps: []scriptedStep{pendingTools("a "), pendingTools("b "), {
			result: proto.StepResult{
				FinishReason: proto.FinishStop,
				Messages:     []proto.Message{{ID: "final", Role: proto.RoleAssistant, Content: "done"}},
			},
		}}}
		conversation := []proto.Message{{ID: "u", Role: proto.RoleUser, Content: "go"}}
		require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
			WithStepLimit(5), WithLogger(quietLogger()), WithOnStepComplete(cb)))
		require.Equal(t, 3, client.calls())
		return conversation
	}

	noop := run(func(context.Context, proto.StepResult) error { return nil })
	failing := run(func(context.Context, proto.StepResult) error { return errors.New("db down") })
	panicking := run(func(context.Context, proto.StepResult) error { panic("boom") })

	// IDs are random; compare the rest.
	strip := func(msgs []proto.Message) []proto.Message {
		out := make([]proto.Message, len(msgs))
		for i, m := range msgs {
			m.ID = ""
			out[i] = m
		}
		return out
	}
	require.Len(t, noop, 6)
	require.Equal(t, strip(noop), strip(failing))
	require.Equal(t, strip(noop), strip(panicking))
}

func TestRunResolvesToolsEveryStep(t *testing.T) {
	var resolved int
	provider := tool.ProviderFunc(func(context.Context) (tool.Set, error) {
		resolved++
		set := tool.Set{"first": {Name: "first"}}
		if resolved > 1 {
			set["gmail_send"] = tool.Tool{Name: "gmail_send"}
		}
		return set, nil
	})
	client := &fakeClient{steps: []scriptedStep{pendingTools("a"), {
		result: proto.StepResult{FinishReason: proto.FinishStop},
	}}}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "go"}}

	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, provider,
		WithStepLimit(3), WithLogger(quietLogger())))
	require.Equal(t, 2, resolved)
	require.Equal(t, []string{"first"}, client.requests[0].Tools.Names())
	require.Equal(t, []string{"first", "gmail_send"}, client.requests[1].Tools.Names())
}

func TestRunPassesRequestParameters(t *testing.T) {
	temp := 0.2
	client := &fakeClient{steps: []scriptedStep{{result: proto.StepResult{FinishReason: proto.FinishStop}}}}
	conversation := []proto.Message{{Role: proto.RoleUser, Content: "go"}}
	require.NoError(t, Run(t.Context(), client, &recordingSink{}, &conversation, nil,
		WithLogger(quietLogger()),
		WithRequest(proto.Request{Model: "gpt-4.1", System: "be brief", Temperature: &temp}),
	))
	req := client.requests[0]
	require.Equal(t, "gpt-4.1", req.Model)
	require.Equal(t, "be brief", req.System)
	require.Equal(t, &temp, req.Temperature)
	require.Len(t, req.Messages, 1)
}

func TestRunSinkOptions(t *testing.T) {
	script := scriptedStep{
		parts: []stream.Part{
			{Type: stream.PartReasoning, Text: "thinking"},
			{Type: stream.PartText, Text: "Hello wor"},
			{Type: stream.PartText, Text: "ld"},
		},
		result: proto.StepResult{FinishReason: proto.FinishStop},
	}

	t.Run("smoothing and reasoning by default", func(t *testing.T) {
		sink := &recordingSink{}
		conversation := []proto.Message{}
		require.NoError(t, Run(t.Context(), &fakeClient{steps: []scriptedStep{script}}, sink, &conversation, nil,
			WithLogger(quietLogger())))
		require.Equal(t, []stream.Part{
			{Type: stream.PartReasoning, Text: "thinking"},
			{Type: stream.PartText, Text: "Hello "},
			{Type: stream.PartText, Text: "world"},
		}, sink.parts)
	})

	t.Run("raw chunks without reasoning", func(t *testing.T) {
		sink := &recordingSink{}
		conversation := []proto.Message{}
		require.NoError(t, Run(t.Context(), &fakeClient{steps: []scriptedStep{script}}, sink, &conversation, nil,
			WithLogger(quietLogger()), WithSmoothing(false), WithSendReasoning(false)))
		require.Equal(t, script.parts[1:], sink.parts)
	})
}

func TestRunHardFailures(t *testing.T) {
	conversation := func() *[]proto.Message {
		c := []proto.Message{{Role: proto.RoleUser, Content: "go"}}
		return &c
	}
	stop := []scriptedStep{{
		parts:  []stream.Part{{Type: stream.PartText, Text: "hi"}},
		result: proto.StepResult{FinishReason: proto.FinishStop},
	}}

	t.Run("tool provider", func(t *testing.T) {
		boom := errors.New("connect unavailable")
		client := &fakeClient{steps: stop}
		err := Run(t.Context(), client, &recordingSink{}, conversation(),
			tool.ProviderFunc(func(context.Context) (tool.Set, error) { return nil, boom }),
			WithLogger(quietLogger()))
		require.ErrorIs(t, err, boom)
		require.Zero(t, client.calls())
	})

	t.Run("backend invocation", func(t *testing.T) {
		boom := errors.New("bad api key")
		err := Run(t.Context(), &fakeClient{failWith: boom}, &recordingSink{}, conversation(), nil,
			WithLogger(quietLogger()))
		require.ErrorIs(t, err, boom)
	})

	t.Run("backend step failure", func(t *testing.T) {
		boom := errors.New("stream reset")
		client := &fakeClient{steps: []scriptedStep{{err: boom}}}
		err := Run(t.Context(), client, &recordingSink{}, conversation(), nil, WithLogger(quietLogger()))
		require.ErrorIs(t, err, boom)
	})

	t.Run("sink write", func(t *testing.T) {
		boom := errors.New("client went away")
		c := conversation()
		err := Run(t.Context(), &fakeClient{steps: stop}, &recordingSink{err: boom}, c, nil,
			WithLogger(quietLogger()))
		require.ErrorIs(t, err, boom)
		require.Len(t, *c, 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		client := &fakeClient{steps: []scriptedStep{{}}}
		err := Run(ctx, client, &recordingSink{}, conversation(),
			tool.ProviderFunc(func(ctx context.Context) (tool.Set, error) { return nil, ctx.Err() }),
			WithLogger(quietLogger()))
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil conversation", func(t *testing.T) {
		require.Error(t, Run(t.Context(), &fakeClient{steps: stop}, &recordingSink{}, nil, nil))
	})
}
