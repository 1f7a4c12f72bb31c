package stream

import (
	"context"
	"slices"
	"sync"
)

// Tee fans the parts of a single producer out to any number of subscribers.
//
// Every subscriber observes every part in production order, including parts
// sent before it subscribed. A slow or abandoned subscriber never blocks the
// producer or the other subscribers.
type Tee struct {
	mu     sync.Mutex
	log    []Part
	subs   []*queue
	closed bool
}

// NewTee creates an open Tee.
func NewTee() *Tee {
	return &Tee{}
}

// Send publishes p to every subscriber. Sending on a closed Tee is a no-op.
func (t *Tee) Send(p Part) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.log = append(t.log, p)
	for _, q := range t.subs {
		q.push(p)
	}
}

// Close ends the stream; subscriber channels close once drained.
func (t *Tee) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, q := range t.subs {
		q.close()
	}
}

// Subscribe returns a channel replaying every part sent so far followed by
// every future part. The channel closes when the Tee is closed and drained,
// or when ctx is done.
func (t *Tee) Subscribe(ctx context.Context) <-chan Part {
	t.mu.Lock()
	q := newQueue(slices.Clone(t.log))
	if t.closed {
		q.close()
	}
	t.subs = append(t.subs, q)
	t.mu.Unlock()

	go q.run(ctx)
	return q.out
}

type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Part
	closed bool
	out    chan Part
}

func newQueue(backlog []Part) *queue {
	q := &queue{buf: backlog, out: make(chan Part)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(p Part) {
	q.mu.Lock()
	q.buf = append(q.buf, p)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *queue) run(ctx context.Context) {
	defer close(q.out)

	stop := context.AfterFunc(ctx, q.close)
	defer stop()

	for {
		q.mu.Lock()
		for len(q.buf) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.buf) == 0 {
			q.mu.Unlock()
			return
		}
		p := q.buf[0]
		q.buf = q.buf[1:]
		q.mu.Unlock()

		select {
		case q.out <- p:
		case <-ctx.Done():
			return
		}
	}
}
