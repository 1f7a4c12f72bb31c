package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/stream"
	"github.com/dotcommander/connectchat/internal/tool"
)

// StepCallback is notified after every model call that produced a usable
// result.
type StepCallback func(ctx context.Context, result proto.StepResult) error

type runOptions struct {
	stepLimit      int
	onStepComplete StepCallback
	request        proto.Request
	logger         *log.Logger
	sendReasoning  bool
	smoothing      bool
}

// Option configures Run.
type Option func(*runOptions)

// WithStepLimit caps the number of model calls. Values below 1 mean 1.
func WithStepLimit(n int) Option {
	return func(o *runOptions) { o.stepLimit = max(n, 1) }
}

// WithOnStepComplete sets the step callback. Its failures are logged and
// never stop the loop.
func WithOnStepComplete(fn StepCallback) Option {
	return func(o *runOptions) { o.onStepComplete = fn }
}

// WithRequest sets the model call parameters. Messages and Tools are
// replaced on every step.
func WithRequest(req proto.Request) Option {
	return func(o *runOptions) { o.request = req }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *runOptions) { o.logger = logger }
}

// WithSendReasoning controls whether reasoning deltas reach the sink.
func WithSendReasoning(send bool) Option {
	return func(o *runOptions) { o.sendReasoning = send }
}

// WithSmoothing controls whitespace-run rechunking of text sent to the sink.
func WithSmoothing(smooth bool) Option {
	return func(o *runOptions) { o.smoothing = smooth }
}

// Run drives a tool-augmented conversation turn.
//
// Each step resolves the tools, issues one streaming model call over the
// whole conversation and forwards its output to sink while waiting for the
// result. The response messages are appended to *conversation. The loop
// continues while the model reports it has more to do (tool calls, length,
// other, unknown) and the step limit allows it.
//
// Run returns nil whenever the turn ends on its own, including when the model
// reports an error. It returns an error only when the tool provider, the model
// call or the sink fails, or when ctx is done.
func Run(
	ctx context.Context,
	client stream.Client,
	sink stream.Sink,
	conversation *[]proto.Message,
	tools tool.Provider,
	opts ...Option,
) error {
	o := runOptions{
		stepLimit:     1,
		logger:        log.Default(),
		sendReasoning: true,
		smoothing:     true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if conversation == nil {
		return errors.New("run: nil conversation")
	}
	if tools == nil {
		tools = tool.Static(nil)
	}

	for step := range o.stepLimit {
		*conversation = proto.EnsureIDs(*conversation)

		set, err := tools.Tools(ctx)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		o.logger.Debug("using tools", "step", step, "tools", set.Names())

		req := o.request
		req.Messages = slices.Clone(*conversation)
		req.Tools = set

		result, err := runStep(ctx, client, sink, req, o)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		result.Step = step
		o.logger.Debug("finish reason", "step", step, "reason", result.FinishReason)

		if !advance(ctx, conversation, result, o) {
			o.logger.Debug("ending loop", "step", step)
			return nil
		}
	}
	return nil
}

// advance folds a step result into the conversation and reports whether the
// loop should go on.
func advance(ctx context.Context, conversation *[]proto.Message, result proto.StepResult, o runOptions) bool {
	result.Messages = proto.EnsureIDs(result.Messages)

	switch result.FinishReason {
	case proto.FinishStop, proto.FinishContentFilter:
		*conversation = proto.AppendResponseMessages(*conversation, result.Messages)
		o.complete(ctx, result)
		return false
	case proto.FinishError:
		o.logger.Warn("model step ended with an error", "step", result.Step)
		if len(result.Messages) > 0 {
			*conversation = proto.AppendResponseMessages(*conversation, result.Messages)
		}
		o.complete(ctx, result)
		return false
	}

	if proto.TrailingMessageID(proto.FilterRole(result.Messages, proto.RoleAssistant)) == "" {
		o.logger.Warn("no assistant message found", "step", result.Step, "messages", len(result.Messages))
		return false
	}
	*conversation = proto.AppendResponseMessages(*conversation, result.Messages)
	o.complete(ctx, result)
	return true
}

func runStep(
	ctx context.Context,
	client stream.Client,
	sink stream.Sink,
	req proto.Request,
	o runOptions,
) (proto.StepResult, error) {
	st, err := client.Request(ctx, req)
	if err != nil {
		return proto.StepResult{}, err //nolint:wrapcheck
	}
	defer st.Close() //nolint:errcheck

	g, gctx := errgroup.WithContext(ctx)

	parts := st.Parts(gctx)
	if o.smoothing {
		parts = stream.Smooth(gctx, parts)
	}

	var result proto.StepResult
	g.Go(func() error {
		var err error
		result, err = st.Result(gctx)
		return err //nolint:wrapcheck
	})
	g.Go(func() error {
		return stream.Merge(gctx, sink, parts, stream.MergeOptions{SendReasoning: o.sendReasoning})
	})
	if err := g.Wait(); err != nil {
		return proto.StepResult{}, err //nolint:wrapcheck
	}
	return result, nil
}

func (o runOptions) complete(ctx context.Context, result proto.StepResult) {
	if o.onStepComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("step callback panicked", "step", result.Step, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := o.onStepComplete(ctx, result); err != nil {
		o.logger.Error("step callback failed", "step", result.Step, "err", err)
	}
}
