package fantasybridge

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"charm.land/fantasy"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/stream"
	"github.com/dotcommander/connectchat/internal/tool"
)

var _ stream.Client = &Client{}

const (
	apiAnthropic  = "anthropic"
	apiGoogle     = "google"
	apiOpenAI     = "openai"
	apiAzure      = "azure"
	apiAzureAD    = "azure-ad"
	apiOpenRouter = "openrouter"
	apiVercel     = "vercel"
	apiBedrock    = "bedrock"
)

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
}

// Client is a stream.Client backed by charm.land/fantasy.
type Client struct {
	provider fantasy.Provider
	config   Config
}

// New creates a new Fantasy-backed stream client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{provider: provider, config: cfg}, nil
}

// Request implements stream.Client.
//
// It starts a single model call and returns immediately. The returned step
// finishes once the model stream is exhausted and every tool call it asked
// for has been executed.
func (c *Client) Request(ctx context.Context, request proto.Request) (*stream.Step, error) {
	model, err := c.provider.LanguageModel(ctx, request.Model)
	if err != nil {
		return nil, fmt.Errorf("fantasy language model: %w", err)
	}

	stepCtx, cancel := context.WithCancel(ctx)
	seq, err := model.Stream(stepCtx, buildCall(c.config, request))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fantasy stream: %w", err)
	}

	step := stream.NewStep(cancel)
	go func() {
		defer cancel()
		step.Finish(pump(stepCtx, seq, request.Tools, step.Send))
	}()
	return step, nil
}

func buildCall(cfg Config, req proto.Request) fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(req.System, req.Messages),
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		Tools:           fromToolSet(req.Tools),
		ToolChoice:      toolChoiceFor(req.Tools),
		ProviderOptions: fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, cfg.API, cfg, req)
	return call
}

// pump reads a fantasy stream to completion, forwarding every event through
// emit, then runs the requested tools and reports the step outcome.
func pump(
	ctx context.Context,
	seq iter.Seq[fantasy.StreamPart],
	tools tool.Set,
	emit func(stream.Part),
) (proto.StepResult, error) {
	c := newCollector()
	for part := range seq {
		if ctx.Err() != nil {
			break
		}
		for _, p := range c.consume(part) {
			emit(p)
		}
	}
	if err := ctx.Err(); err != nil {
		return proto.StepResult{}, err //nolint:wrapcheck
	}

	results, err := runTools(ctx, tools, c.calls, emit)
	if err != nil {
		return proto.StepResult{}, err
	}

	result := proto.StepResult{
		FinishReason: c.finishReason(),
		Messages:     c.messages(results),
		Usage:        c.usage,
		Warnings:     c.warnings,
	}
	emit(stream.Part{
		Type:         stream.PartFinish,
		FinishReason: result.FinishReason,
		Usage:        &result.Usage,
	})
	return result, nil
}

// runTools executes the calls concurrently. Results keep the order of calls.
func runTools(
	ctx context.Context,
	tools tool.Set,
	calls []proto.ToolCall,
	emit func(stream.Part),
) ([]proto.ToolResult, error) {
	results := make([]proto.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			res := proto.ToolResult{ToolCallID: call.ID, Name: call.Function.Name}
			t, ok := tools[call.Function.Name]
			switch {
			case !ok || t.Execute == nil:
				res.Output = fmt.Sprintf("tool not found: %s", call.Function.Name)
				res.IsError = true
			default:
				out, err := t.Execute(gctx, call.Function.Arguments)
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr //nolint:wrapcheck
				}
				if err != nil {
					res.Output = err.Error()
					res.IsError = true
				} else {
					res.Output = out
				}
			}
			results[i] = res
			emit(stream.Part{
				Type:       stream.PartToolResult,
				ToolCallID: res.ToolCallID,
				ToolName:   res.Name,
				Output:     res.Output,
				IsError:    res.IsError,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck
	}
	return results, nil
}

// collector accumulates what a single model call produced.
type collector struct {
	text      strings.Builder
	reasoning strings.Builder

	calls    []proto.ToolCall
	callSeen map[string]struct{}

	warnings    []string
	warningSeen map[string]struct{}

	finish proto.FinishReason
	usage  proto.Usage
	failed bool
}

func newCollector() *collector {
	return &collector{
		callSeen:    map[string]struct{}{},
		warningSeen: map[string]struct{}{},
	}
}

func (c *collector) consume(part fantasy.StreamPart) []stream.Part {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		if part.Delta == "" {
			return nil
		}
		c.text.WriteString(part.Delta)
		return []stream.Part{{Type: stream.PartText, Text: part.Delta}}
	case fantasy.StreamPartTypeReasoningDelta:
		if part.Delta == "" {
			return nil
		}
		c.reasoning.WriteString(part.Delta)
		return []stream.Part{{Type: stream.PartReasoning, Text: part.Delta}}
	case fantasy.StreamPartTypeToolCall:
		if part.ProviderExecuted {
			return nil
		}
		if _, exists := c.callSeen[part.ID]; exists {
			return nil
		}
		c.callSeen[part.ID] = struct{}{}
		c.calls = append(c.calls, proto.ToolCall{
			ID: part.ID,
			Function: proto.Function{
				Name:      part.ToolCallName,
				Arguments: []byte(part.ToolCallInput),
			},
		})
		return []stream.Part{{
			Type:       stream.PartToolCall,
			ToolCallID: part.ID,
			ToolName:   part.ToolCallName,
			Input:      part.ToolCallInput,
		}}
	case fantasy.StreamPartTypeError:
		c.failed = true
		msg := "model stream failed"
		if part.Error != nil {
			msg = part.Error.Error()
		}
		return []stream.Part{{Type: stream.PartError, Text: msg}}
	case fantasy.StreamPartTypeWarnings:
		var parts []stream.Part
		for _, warning := range part.Warnings {
			text := warningText(warning)
			key := string(warning.Type) + ":" + text
			if _, exists := c.warningSeen[key]; exists {
				continue
			}
			c.warningSeen[key] = struct{}{}
			c.warnings = append(c.warnings, text)
			parts = append(parts, stream.Part{Type: stream.PartWarning, Text: text})
		}
		return parts
	case fantasy.StreamPartTypeFinish:
		c.finish = proto.ParseFinishReason(string(part.FinishReason))
		c.usage = proto.Usage{
			InputTokens:     part.Usage.InputTokens,
			OutputTokens:    part.Usage.OutputTokens,
			TotalTokens:     part.Usage.TotalTokens,
			ReasoningTokens: part.Usage.ReasoningTokens,
		}
		return nil
	default:
		return nil
	}
}

func warningText(warning fantasy.CallWarning) string {
	text := strings.TrimSpace(warning.Message)
	if text == "" {
		text = strings.TrimSpace(warning.Details)
	}
	if text == "" && warning.Setting != "" {
		text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
	}
	if text == "" {
		text = "provider warning"
	}
	return text
}

func (c *collector) finishReason() proto.FinishReason {
	if c.failed {
		return proto.FinishError
	}
	if c.finish == "" {
		return proto.FinishUnknown
	}
	return c.finish
}

func (c *collector) messages(results []proto.ToolResult) []proto.Message {
	var msgs []proto.Message
	assistant := proto.Message{
		ID:        proto.NewID(),
		Role:      proto.RoleAssistant,
		Content:   c.text.String(),
		Reasoning: c.reasoning.String(),
		ToolCalls: c.calls,
	}
	if assistant.Content != "" || assistant.Reasoning != "" || len(assistant.ToolCalls) > 0 {
		msgs = append(msgs, assistant)
	}
	if len(results) > 0 {
		msgs = append(msgs, proto.Message{
			ID:          proto.NewID(),
			Role:        proto.RoleTool,
			ToolResults: results,
		})
	}
	return msgs
}
