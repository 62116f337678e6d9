package session

import (
	"context"
	"time"

	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"

	"go.uber.org/zap"
)

// State is the connection state of a session
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Role tells which side of a conversation a session is
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Session holds what client and server sessions share: the conversation
// identity, the peer address and the connection state
type Session struct {
	stack    *Stack
	role     Role
	thread   string
	service  string
	locale   string
	remoteID string
	xid      string
	state    State
	logger   *zap.Logger
}

func (s *Session) Base() *Session      { return s }
func (s *Session) Stack() *Stack       { return s.stack }
func (s *Session) Role() Role          { return s.role }
func (s *Session) Thread() string      { return s.thread }
func (s *Session) Service() string     { return s.service }
func (s *Session) Locale() string      { return s.locale }
func (s *Session) RemoteID() string    { return s.remoteID }
func (s *Session) State() State        { return s.state }
func (s *Session) Xid() string         { return s.xid }
func (s *Session) Logger() *zap.Logger { return s.logger }

// SetLocale changes the locale stamped on outgoing messages
func (s *Session) SetLocale(locale string) {
	if locale != "" {
		s.locale = locale
	}
}

func (s *Session) setRemoteID(remoteID string) {
	if remoteID == "" || remoteID == s.remoteID {
		return
	}
	s.remoteID = remoteID
	s.logger.Debug("setting remote id", zap.String("remote_id", remoteID))
}

// Send stamps msgs with the current ingress and the session locale and
// sends them to the peer as one envelope
func (s *Session) Send(ctx context.Context, msgs ...*protocol.Message) error {
	ingress := s.stack.registry.Ingress()
	for _, m := range msgs {
		m.Ingress = ingress
		if m.Locale == "" {
			m.Locale = s.locale
		}
		s.stack.metrics.BusMessage("out", string(m.Type))
	}

	body, err := protocol.Encode(msgs...)
	if err != nil {
		return err
	}
	return s.stack.transport.Send(ctx, &transport.Envelope{
		Recipient: s.remoteID,
		Thread:    s.thread,
		Body:      string(body),
		Xid:       s.xid,
	})
}

// Wait receives at most one envelope within timeout and dispatches it. A
// negative timeout blocks until an envelope arrives, zero only polls.
// Envelopes for other sessions of the same stack are dispatched too.
func (s *Session) Wait(ctx context.Context, timeout time.Duration) error {
	env, err := s.stack.transport.Receive(ctx, timeout)
	if err != nil {
		return err
	}
	if env == nil {
		return nil
	}
	_, err = s.stack.Push(ctx, env)
	return err
}

// Cleanup removes the session from the registry
func (s *Session) Cleanup() {
	s.cleanup()
}

func (s *Session) cleanup() bool {
	if !s.stack.registry.Remove(s.thread) {
		return false
	}
	s.stack.metrics.SessionClosed(string(s.role))
	return true
}
