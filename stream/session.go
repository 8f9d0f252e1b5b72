// Package stream runs one delivery loop per connected monitoring client.
package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go-attentionmap/hub"
)

// State is the session lifecycle. Reconnecting is the client's job: the
// server never resumes a session by identity, it only accepts a fresh
// Connecting one after the client re-fetched current state.
type State int32

const (
	Connecting State = iota
	Streaming
	Disconnected
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Frame names on the wire, alongside the notification type names.
const (
	FrameConnected = "connected"
	FrameKeepAlive = "keepalive"
	FrameResync    = "resync"
)

// Transport writes one message per call to the client. The wire format is
// its concern.
type Transport interface {
	Send(event string, data any) error
}

// Session owns one subscription and serializes its notifications to a
// transport, with periodic keep-alives so dead connections surface within
// one interval.
type Session struct {
	hub       *hub.Hub
	transport Transport
	keepAlive time.Duration
	state     atomic.Int32
}

func NewSession(h *hub.Hub, t Transport, keepAlive time.Duration) *Session {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &Session{hub: h, transport: t, keepAlive: keepAlive}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run subscribes, streams until the context ends or a write fails, and always
// leaves the session Closed with its subscription removed. A write failure
// tears down only this session; the hub and every other session are
// untouched.
func (s *Session) Run(ctx context.Context) error {
	s.state.Store(int32(Connecting))

	sub := s.hub.Subscribe()
	// Unsubscribe before anything else on the way out so nothing keeps
	// buffering for an unread session.
	defer func() {
		s.hub.Unsubscribe(sub)
		s.state.Store(int32(Closed))
	}()

	if err := s.transport.Send(FrameConnected, map[string]string{"status": "connected"}); err != nil {
		s.state.Store(int32(Disconnected))
		return fmt.Errorf("handshake: %w", err)
	}
	s.state.Store(int32(Streaming))

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-sub.C():
			// Dropped notifications are gone for good; tell the client to
			// re-fetch a snapshot before trusting the stream again.
			if sub.TakeMissed() {
				if err := s.transport.Send(FrameResync, map[string]string{"reason": "missed_updates"}); err != nil {
					s.state.Store(int32(Disconnected))
					return fmt.Errorf("write resync: %w", err)
				}
			}
			if err := s.transport.Send(string(n.Type), n); err != nil {
				s.state.Store(int32(Disconnected))
				return fmt.Errorf("write notification: %w", err)
			}
			ticker.Reset(s.keepAlive)
		case <-ticker.C:
			if err := s.transport.Send(FrameKeepAlive, map[string]int64{"ts": time.Now().Unix()}); err != nil {
				s.state.Store(int32(Disconnected))
				return fmt.Errorf("write keepalive: %w", err)
			}
		}
	}
}
