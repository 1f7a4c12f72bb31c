package stream

import (
	"context"
	"sync"

	"github.com/dotcommander/connectchat/internal/proto"
)

// Step is a handle on a running model call.
//
// The producer feeds it with Send and terminates it with Finish. Consumers
// read parts through Parts, which may be called any number of times, and the
// final result through Result.
type Step struct {
	tee    *Tee
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	result proto.StepResult
	err    error
}

// NewStep returns an unfinished step. cancel, if not nil, is invoked by Close
// to abort the producer.
func NewStep(cancel context.CancelFunc) *Step {
	return &Step{
		tee:    NewTee(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Send publishes a part to every subscriber.
func (s *Step) Send(p Part) {
	s.tee.Send(p)
}

// Finish records the outcome and closes the part stream. Only the first call
// has an effect.
func (s *Step) Finish(result proto.StepResult, err error) {
	s.once.Do(func() {
		s.result = result
		s.err = err
		s.tee.Close()
		close(s.done)
	})
}

// Parts returns a new subscription on the step output, replaying any part
// already produced.
func (s *Step) Parts(ctx context.Context) <-chan Part {
	return s.tee.Subscribe(ctx)
}

// Result blocks until the step has finished and returns its outcome.
func (s *Step) Result(ctx context.Context) (proto.StepResult, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return proto.StepResult{}, ctx.Err()
	}
}

// Consume drains a subscription and returns the result.
func (s *Step) Consume(ctx context.Context) (proto.StepResult, error) {
	for range s.Parts(ctx) { //nolint:revive
	}
	return s.Result(ctx)
}

// Close aborts the producer.
func (s *Step) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
