package session

import (
	"context"
	"fmt"
	"time"

	"github.com/amoylab/osrf/internal/i18n"
	"github.com/amoylab/osrf/internal/protocol"

	"go.uber.org/zap"
)

// Lifecycle events a ServerSession runs callbacks for
const (
	EventDeath       = "death"
	EventDisconnect  = "disconnect"
	EventPreRequest  = "pre_request"
	EventPostRequest = "post_request"
)

// Callback is run on a session lifecycle event
type Callback func(*ServerSession)

// ServerSession is the service side of a conversation. It is created the
// first time an envelope arrives for an unknown thread.
type ServerSession struct {
	Session
	callbacks map[string]Callback
	data      map[string]any
}

var _ Conversation = (*ServerSession)(nil)

// RegisterCallback sets the callback for event, replacing any earlier one
func (s *ServerSession) RegisterCallback(event string, fn Callback) {
	s.callbacks[event] = fn
}

// RunCallback runs the callback registered for event, if any
func (s *ServerSession) RunCallback(event string) {
	if fn, ok := s.callbacks[event]; ok {
		fn(s)
	}
}

// Data is scratch space the application keeps for the conversation
func (s *ServerSession) Data() map[string]any {
	return s.data
}

// Cleanup removes the session from the registry, then runs the death
// callback. Later calls do nothing.
func (s *ServerSession) Cleanup() {
	if s.cleanup() {
		s.RunCallback(EventDeath)
	}
}

func (s *ServerSession) text(msgID, fallback string, data map[string]any) string {
	if s.stack.translator == nil {
		return fallback
	}
	return s.stack.translator.Translate(msgID, s.locale, data)
}

// SendStatus sends a STATUS carrying payload for request trace
func (s *ServerSession) SendStatus(ctx context.Context, trace int, payload protocol.Status) error {
	msg := protocol.NewStatus(trace, payload)
	msg.Locale = s.locale
	return s.Send(ctx, msg)
}

// SendConnectOK acknowledges a CONNECT
func (s *ServerSession) SendConnectOK(ctx context.Context, trace int) error {
	return s.SendStatus(ctx, trace, &protocol.ConnectStatus{
		Status:     s.text(i18n.MsgConnectOK, protocol.TextConnectOK, nil),
		StatusCode: protocol.StatusOK,
	})
}

// SendMethodNotFound reports that no method called name exists
func (s *ServerSession) SendMethodNotFound(ctx context.Context, trace int, name string) error {
	return s.SendStatus(ctx, trace, &protocol.ConnectStatus{
		Status: s.text(i18n.MsgMethodNotFound, fmt.Sprintf(protocol.TextMethodNotFound, name, s.service),
			map[string]any{"Method": name, "Service": s.service}),
		StatusCode: protocol.StatusNotFound,
	})
}

// SendTimeout tells a connected client the session was dropped for inactivity
func (s *ServerSession) SendTimeout(ctx context.Context) error {
	return s.SendStatus(ctx, 0, &protocol.ConnectStatus{
		Status:     s.text(i18n.MsgTimeout, protocol.TextTimeout, nil),
		StatusCode: protocol.StatusTimeout,
	})
}

// SendException reports a failure raised while running request trace
func (s *ServerSession) SendException(ctx context.Context, trace int, code protocol.StatusCode, text string) error {
	return s.SendStatus(ctx, trace, &protocol.MethodException{Status: text, StatusCode: code})
}

func (s *ServerSession) handleMessage(ctx context.Context, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeRequest:
		method, ok := msg.Payload.(*protocol.Method)
		if !ok {
			return &ProtocolError{Reason: "REQUEST without osrfMethod payload"}
		}
		s.logger.Debug("server received REQUEST",
			zap.String("remote_id", s.remoteID),
			zap.String("method", method.Method))

		req := newServerRequest(s, msg.ThreadTrace, method.Method, method.Params)
		s.RunCallback(EventPreRequest)
		if s.stack.handler != nil {
			s.stack.handler.HandleRequest(ctx, s, req)
		}
		s.RunCallback(EventPostRequest)
		return nil

	case protocol.TypeConnect:
		s.logger.Debug("server received CONNECT", zap.String("remote_id", s.remoteID))
		s.state = Connected
		return s.SendConnectOK(ctx, msg.ThreadTrace)

	case protocol.TypeDisconnect:
		s.logger.Debug("server received DISCONNECT", zap.String("remote_id", s.remoteID))
		s.state = Disconnected
		s.RunCallback(EventDisconnect)
		return nil

	default:
		s.logger.Debug("server ignoring message", zap.String("type", string(msg.Type)))
		return nil
	}
}

// ServerRequest is one call being answered by a ServerSession. Atomic
// requests buffer every response and flush them as a single RESULT.
type ServerRequest struct {
	Request
	session   *ServerSession
	atomic    bool
	responses []any
}

func newServerRequest(s *ServerSession, id int, method string, params []any) *ServerRequest {
	return &ServerRequest{
		Request:   Request{id: id, method: method, params: params, locale: s.locale},
		session:   s,
		responses: []any{},
	}
}

// NewServerRequest builds a request answered through s, for callers that
// dispatch methods outside the stack
func NewServerRequest(s *ServerSession, id int, method string, params []any) *ServerRequest {
	return newServerRequest(s, id, method, params)
}

// Session returns the session the request arrived on
func (r *ServerRequest) Session() *ServerSession { return r.session }

// SetAtomic selects atomic delivery; it must be set before the first Respond
func (r *ServerRequest) SetAtomic(atomic bool) { r.atomic = atomic }

func (r *ServerRequest) Atomic() bool { return r.atomic }

func (r *ServerRequest) resultMsg(data any) *protocol.Message {
	msg := protocol.NewResult(r.id, data)
	msg.Locale = r.locale
	return msg
}

func (r *ServerRequest) completeMsg() *protocol.Message {
	msg := protocol.NewConnectStatus(r.id, protocol.StatusComplete,
		r.session.text(i18n.MsgComplete, protocol.TextComplete, nil))
	msg.Locale = r.locale
	return msg
}

// Respond sends data right away, or buffers it for atomic requests. The
// atomic buffer is not bounded.
func (r *ServerRequest) Respond(ctx context.Context, data any) error {
	if r.atomic {
		r.responses = append(r.responses, data)
		return nil
	}
	return r.session.Send(ctx, r.resultMsg(data))
}

// RespondComplete sends the final data, if not nil, with the completion
// status. Calls after the first are no-ops.
func (r *ServerRequest) RespondComplete(ctx context.Context, data any) error {
	if r.complete {
		return nil
	}
	r.complete = true
	r.completeTime = time.Now()

	switch {
	case r.atomic:
		if data != nil {
			r.responses = append(r.responses, data)
		}
		return r.session.Send(ctx, r.resultMsg(r.responses), r.completeMsg())
	case data != nil:
		return r.session.Send(ctx, r.resultMsg(data), r.completeMsg())
	default:
		return r.session.Send(ctx, r.completeMsg())
	}
}
