package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/codechat/internal/editor"
	"github.com/raphaelgruber/codechat/internal/session"
	"github.com/raphaelgruber/codechat/internal/view"
)

const (
	// outboxSize bounds host messages queued for the writer.
	outboxSize = 64
	// pingInterval keeps idle panel connections alive.
	pingInterval = 10 * time.Second
	writeTimeout = 10 * time.Second
	// maxEventSize bounds a single view event (message edits included).
	maxEventSize = 1 << 20
)

// connSink queues host messages for the connection's writer. Post blocks
// while the queue is full and drops messages once the connection is gone.
type connSink struct {
	out  chan view.HostMessage
	done <-chan struct{}
}

func (c *connSink) Post(msg view.HostMessage) {
	select {
	case c.out <- msg:
	case <-c.done:
	}
}

// handleWS runs one panel: a session fed by the connection's events and a
// single writer draining the session's host messages.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxEventSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := &connSink{out: make(chan view.HostMessage, outboxSize), done: ctx.Done()}
	sess := session.New(session.Dependencies{
		Streamer:  s.deps.Streamer,
		Counter:   s.deps.Counter,
		Selection: editor.NewTracker(),
		Sink:      sink,
		Settings:  s.deps.Settings,
		Usage:     s.deps.Usage,
		Metrics:   s.deps.Metrics,
		Logger:    s.logger,
		Style:     s.deps.Style,
	})
	logger := s.logger.With("session", sess.ID(), "remote", r.RemoteAddr)

	s.deps.Metrics.SessionOpened()
	defer s.deps.Metrics.SessionClosed()
	logger.Info("panel connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		if err := writeLoop(ctx, conn, sink.out); err != nil {
			logger.Debug("writer stopped", "error", err)
		}
	}()

	// Unblock the reader when the server shuts down or the writer fails.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sess.Refresh()
	readLoop(ctx, conn, sess, logger)

	cancel()
	sess.Close()
	<-writerDone
	logger.Info("panel disconnected")
}

func readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, logger *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Warn("read failed", "error", err)
			}
			return
		}

		ev, err := view.Decode(data)
		if err != nil {
			logger.Warn("dropping view event", "error", err)
			continue
		}
		if err := sess.HandleEvent(ctx, ev); err != nil && !errors.Is(err, session.ErrTurnInProgress) {
			logger.Debug("view event rejected", "type", ev.Type(), "error", err)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan view.HostMessage) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return nil
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		}
	}
}
