package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/codechat/internal/tokenizer"
)

// streamBuffer bounds the fragments queued between the network goroutine
// and the consumer.
const streamBuffer = 16

// EmitFunc hands one fragment to the stream consumer. It blocks while the
// buffer is full and fails once the stream is cancelled.
type EmitFunc func(fragment string) error

// ProduceFunc runs a completion request, calling emit for each fragment.
type ProduceFunc func(ctx context.Context, emit EmitFunc) error

// Stream is a one-shot, pull-based sequence of response fragments.
// Recv and the accessors must be called from a single goroutine.
type Stream struct {
	frags   chan string
	err     error // set by the producer before frags is closed
	cancel  context.CancelCauseFunc
	counter tokenizer.Counter

	text   strings.Builder
	tokens int
}

// Pump starts produce on its own goroutine and returns the stream it feeds.
// When timeout is positive and neither a fragment nor the end of the
// response arrives within it, the request is cancelled with ErrSetupTimeout.
// No timeout applies once the first fragment has arrived.
func Pump(ctx context.Context, counter tokenizer.Counter, timeout time.Duration, produce ProduceFunc) *Stream {
	if counter == nil {
		counter = tokenizer.Whitespace{}
	}
	ctx, cancel := context.WithCancelCause(ctx)
	s := &Stream{
		frags:   make(chan string, streamBuffer),
		cancel:  cancel,
		counter: counter,
	}

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() { cancel(ErrSetupTimeout) })
	}
	var started sync.Once
	markStarted := func() {
		started.Do(func() {
			if timer != nil {
				timer.Stop()
			}
		})
	}

	emit := func(fragment string) error {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		markStarted()
		if fragment == "" {
			return nil
		}
		select {
		case s.frags <- fragment:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	go func() {
		err := produce(ctx, emit)
		markStarted()
		if err != nil {
			if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
				err = fmt.Errorf("%w: %v", cause, err)
			}
		}
		s.err = err
		close(s.frags)
		cancel(nil)
	}()

	return s
}

// Recv returns the next fragment. It returns io.EOF after the last fragment
// of a successful response, or a *StreamError carrying the text received so
// far when the response failed.
func (s *Stream) Recv() (string, error) {
	frag, ok := <-s.frags
	if ok {
		s.text.WriteString(frag)
		s.tokens += s.counter.Count(frag)
		return frag, nil
	}
	if s.err != nil {
		return "", &StreamError{Partial: s.text.String(), Err: s.err}
	}
	return "", io.EOF
}

// Text returns the concatenation of all fragments received so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// CompletionTokens returns the token count of the fragments received so far.
func (s *Stream) CompletionTokens() int {
	return s.tokens
}

// Close cancels the request if it is still running. Calling Close after the
// stream has ended is a no-op.
func (s *Stream) Close() {
	s.cancel(context.Canceled)
}

// Drain consumes the rest of the stream, returning the final error (nil on
// a clean end).
func (s *Stream) Drain() error {
	for {
		if _, err := s.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
