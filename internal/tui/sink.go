package tui

import (
	"context"
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/codechat/internal/view"
)

// hostMsgs carries the host messages posted since the last delivery.
type hostMsgs []view.HostMessage

// Sink queues host messages for the program. Post never blocks, so the
// session can post while holding its lock.
type Sink struct {
	mu     sync.Mutex
	queue  []view.HostMessage
	notify chan struct{}
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{notify: make(chan struct{}, 1)}
}

// Post queues msg and wakes the program.
func (s *Sink) Post(msg view.HostMessage) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Sink) drain() []view.HostMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// wait returns a command that delivers the next batch of host messages.
func (s *Sink) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-s.notify:
			return hostMsgs(s.drain())
		case <-ctx.Done():
			return nil
		}
	}
}
