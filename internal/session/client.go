package session

import (
	"context"
	"time"

	"github.com/amoylab/osrf/internal/protocol"

	"go.uber.org/zap"
)

// ClientSession issues requests to one service
type ClientSession struct {
	Session
	origRemoteID string
	nextID       int
	requests     map[int]*ClientRequest
}

var _ Conversation = (*ClientSession)(nil)

// Connect opens a stateful conversation, waiting up to timeout for the
// service to acknowledge it. A negative timeout waits without bound. On
// failure the session is left disconnected and addressed to the service
// again.
func (s *ClientSession) Connect(ctx context.Context, timeout time.Duration) error {
	if s.state == Connected {
		return nil
	}
	s.state = Connecting

	if err := s.Send(ctx, protocol.NewConnect(0)); err != nil {
		s.connectFailed()
		return err
	}

	deadline := time.Now().Add(timeout)
	for s.state != Connected {
		wait := time.Duration(-1)
		if timeout >= 0 {
			wait = max(time.Until(deadline), 0)
		}
		if err := s.Wait(ctx, wait); err != nil {
			s.connectFailed()
			return err
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			break
		}
	}

	if s.state != Connected {
		s.connectFailed()
		return &ServiceUnavailableError{Service: s.service}
	}
	s.logger.Debug("connected", zap.String("remote_id", s.remoteID))
	return nil
}

func (s *ClientSession) connectFailed() {
	s.state = Disconnected
	s.ResetRemoteID()
}

// Disconnect ends a stateful conversation without waiting for an answer
func (s *ClientSession) Disconnect(ctx context.Context) error {
	if s.state == Disconnected {
		return nil
	}
	err := s.Send(ctx, protocol.NewDisconnect(0))
	s.state = Disconnected
	return err
}

// Cleanup abandons every live request and removes the session from the registry
func (s *ClientSession) Cleanup() {
	for _, req := range s.requests {
		req.Cleanup()
	}
	s.Session.Cleanup()
}

// ResetRemoteID addresses the session to the service router again,
// forgetting the backend learned from earlier responses
func (s *ClientSession) ResetRemoteID() {
	s.remoteID = s.origRemoteID
	s.logger.Debug("resetting remote id", zap.String("remote_id", s.remoteID))
}

// OrigRemoteID returns the canonical <router>@<domain>/<service> address
func (s *ClientSession) OrigRemoteID() string {
	return s.origRemoteID
}

// Request sends method with params and returns without waiting
func (s *ClientSession) Request(ctx context.Context, method string, params ...any) (*ClientRequest, error) {
	return s.RequestWithParams(ctx, method, params)
}

// RequestWithParams is Request with the params passed as a slice
func (s *ClientSession) RequestWithParams(ctx context.Context, method string, params []any) (*ClientRequest, error) {
	if s.state != Connected {
		s.ResetRemoteID()
	}
	s.xid = NewXid()

	s.logger.Debug("sending request",
		zap.String("method", method),
		zap.Int("trace", s.nextID),
		zap.String("xid", s.xid))

	req := newClientRequest(s, s.nextID, method, params)
	s.requests[req.id] = req
	s.nextID++

	if err := req.Send(ctx); err != nil {
		req.Cleanup()
		return nil, err
	}
	return req, nil
}

// FindRequest returns the live request with id, or nil
func (s *ClientSession) FindRequest(id int) *ClientRequest {
	return s.requests[id]
}

// Requests returns the number of live requests
func (s *ClientSession) Requests() int {
	return len(s.requests)
}

// ResetRequestTimeout extends the patience of the request with id
func (s *ClientSession) ResetRequestTimeout(id int) {
	if req := s.FindRequest(id); req != nil {
		req.ResetTimeout()
	}
}

func (s *ClientSession) pushResponse(trace int, res *protocol.Result) {
	req := s.FindRequest(trace)
	if req == nil {
		s.logger.Warn("pushing response to non-existent request", zap.Int("trace", trace))
		return
	}
	req.PushResponse(res)
}

func (s *ClientSession) handleMessage(_ context.Context, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeResult:
		res, ok := msg.Payload.(*protocol.Result)
		if !ok {
			return &ProtocolError{Reason: "RESULT without osrfResult payload"}
		}
		s.pushResponse(msg.ThreadTrace, res)
		return nil

	case protocol.TypeStatus:
		status := msg.StatusOf()
		if status == nil {
			return &ProtocolError{Reason: "STATUS without status payload"}
		}
		return s.handleStatus(msg.ThreadTrace, status)

	default:
		s.logger.Debug("client ignoring message", zap.String("type", string(msg.Type)))
		return nil
	}
}

func (s *ClientSession) handleStatus(trace int, status protocol.Status) error {
	code := status.Code()
	switch {
	case code == protocol.StatusComplete:
		if req := s.FindRequest(trace); req != nil {
			req.SetComplete()
		}
	case code == protocol.StatusOK:
		if trace == 0 && s.state == Connecting {
			s.state = Connected
		} else {
			s.logger.Debug("ignoring OK status outside of connect", zap.Int("thread_trace", trace))
		}
	case code == protocol.StatusContinue:
		s.ResetRequestTimeout(trace)
	case code == protocol.StatusTimeout:
		s.logger.Debug("server did not receive a request in time")
		s.state = Disconnected
	case code == protocol.StatusNotFound:
		s.logger.Error("requested method was not found on the server", zap.String("status", status.Text()))
		s.state = Disconnected
		return &ServiceError{Code: code, Status: status.Text()}
	case code.IsError():
		return &ServiceError{Code: code, Status: status.Text()}
	default:
		return &ProtocolError{Reason: "unknown message status: " + code.String()}
	}
	return nil
}
