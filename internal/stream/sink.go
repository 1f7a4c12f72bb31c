package stream

import (
	"context"
	"fmt"
	"io"
)

// Sink accepts the parts streamed to a reader.
type Sink interface {
	Write(p Part) error
}

// MergeOptions controls what Merge forwards.
type MergeOptions struct {
	SendReasoning bool
}

// Merge forwards parts into sink until parts is closed. Reasoning parts are
// dropped unless opts.SendReasoning is set.
func Merge(ctx context.Context, sink Sink, parts <-chan Part, opts MergeOptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case p, ok := <-parts:
			if !ok {
				return nil
			}
			if p.Type == PartReasoning && !opts.SendReasoning {
				continue
			}
			if err := sink.Write(p); err != nil {
				return fmt.Errorf("write to sink: %w", err)
			}
		}
	}
}

// WriterSink renders parts as plain text.
//
// Text goes to Out. Reasoning, tool activity, warnings and errors go to
// Status, and are dropped when Status is nil.
type WriterSink struct {
	Out    io.Writer
	Status io.Writer
}

// Write implements Sink.
func (w WriterSink) Write(p Part) error {
	var err error
	switch p.Type {
	case PartText:
		_, err = io.WriteString(w.Out, p.Text)
	case PartReasoning:
		err = w.status("%s", p.Text)
	case PartToolCall:
		err = w.status("\n> Running tool: %s\n", p.ToolName)
	case PartToolResult:
		if p.IsError {
			err = w.status("> Tool %s failed: %s\n", p.ToolName, p.Output)
		}
	case PartWarning:
		err = w.status("warning: %s\n", p.Text)
	case PartError:
		err = w.status("error: %s\n", p.Text)
	case PartFinish:
	}
	if err != nil {
		return fmt.Errorf("write %s part: %w", p.Type, err)
	}
	return nil
}

func (w WriterSink) status(format string, args ...any) error {
	if w.Status == nil {
		return nil
	}
	_, err := fmt.Fprintf(w.Status, format, args...)
	return err //nolint:wrapcheck
}
