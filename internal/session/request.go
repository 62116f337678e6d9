package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Request is the state shared by client and server requests
type Request struct {
	id           int
	method       string
	params       []any
	locale       string
	complete     bool
	completeTime time.Time
}

func (r *Request) ID() int                 { return r.id }
func (r *Request) Method() string          { return r.method }
func (r *Request) Params() []any           { return r.params }
func (r *Request) Locale() string          { return r.locale }
func (r *Request) Complete() bool          { return r.complete }
func (r *Request) CompleteTime() time.Time { return r.completeTime }

// ClientRequest is one call issued by a ClientSession. Responses are queued
// in arrival order until Recv consumes them.
type ClientRequest struct {
	Request
	session           *ClientSession
	queue             []*protocol.Result
	resetTimeout      atomic.Bool
	sendTime          time.Time
	firstResponseTime time.Time
	span              *trace.SpanScope
	cleaned           bool
}

func newClientRequest(s *ClientSession, id int, method string, params []any) *ClientRequest {
	if params == nil {
		params = []any{}
	}
	return &ClientRequest{
		Request: Request{id: id, method: method, params: params, locale: s.locale},
		session: s,
	}
}

// Send puts the REQUEST on the wire
func (r *ClientRequest) Send(ctx context.Context) error {
	r.span = trace.Tracer(cnst.TraceSession).Start(ctx, cnst.SpanClientRequest).WithAttrs(
		attribute.String(cnst.AttrService, r.session.service),
		attribute.String(cnst.AttrMethod, r.method),
		attribute.String(cnst.AttrThread, r.session.thread),
		attribute.Int(cnst.AttrThreadTrace, r.id),
	)
	msg := protocol.NewRequest(r.id, r.method, r.params)
	msg.Locale = r.locale

	r.sendTime = time.Now()
	r.session.stack.metrics.ClientReqStart(r.session.service)
	if err := r.session.Send(ctx, msg); err != nil {
		r.span.Fail(err)
		return err
	}
	return nil
}

// Recv returns the oldest queued response, waiting up to timeout for one.
// A negative timeout waits until a response arrives or the request
// completes. It returns nil, nil when nothing arrived in time or the
// request completed without further responses.
func (r *ClientRequest) Recv(ctx context.Context, timeout time.Duration) (*protocol.Result, error) {
	if err := r.session.Wait(ctx, 0); err != nil {
		return nil, r.fail(err)
	}

	deadline := time.Now().Add(timeout)
	for !r.complete && len(r.queue) == 0 {
		wait := time.Duration(-1)
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				break
			}
		}
		if err := r.session.Wait(ctx, wait); err != nil {
			return nil, r.fail(err)
		}
		if r.resetTimeout.CompareAndSwap(true, false) {
			deadline = time.Now().Add(timeout)
		}
	}

	now := time.Now()
	if len(r.queue) > 0 && r.firstResponseTime.IsZero() {
		r.firstResponseTime = now
		r.session.logger.Debug("time elapsed before first response",
			zap.Int("trace", r.id),
			zap.Duration("elapsed", now.Sub(r.sendTime)))
	}
	if r.complete && r.completeTime.IsZero() {
		r.completeTime = now
		r.session.logger.Debug("time elapsed before complete",
			zap.Int("trace", r.id),
			zap.Duration("elapsed", now.Sub(r.sendTime)))
	}

	if len(r.queue) == 0 {
		return nil, nil
	}
	res := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return res, nil
}

func (r *ClientRequest) fail(err error) error {
	r.span.Fail(err)
	return err
}

// PushResponse queues a response. It is called by the dispatch path.
func (r *ClientRequest) PushResponse(res *protocol.Result) {
	r.queue = append(r.queue, res)
}

// SetComplete marks that the server sent its completion status
func (r *ClientRequest) SetComplete() {
	if r.complete {
		return
	}
	r.complete = true
	r.span.Status(int(protocol.StatusComplete), protocol.TextComplete)
}

// ResetTimeout makes the running Recv restart its full timeout once. It
// may be called from any goroutine.
func (r *ClientRequest) ResetTimeout() {
	r.resetTimeout.Store(true)
}

// Pending returns the number of queued, unread responses
func (r *ClientRequest) Pending() int {
	return len(r.queue)
}

func (r *ClientRequest) SendTime() time.Time          { return r.sendTime }
func (r *ClientRequest) FirstResponseTime() time.Time { return r.firstResponseTime }

// Cleanup stops tracking the request. Responses arriving afterwards are
// logged and dropped.
func (r *ClientRequest) Cleanup() {
	if r.cleaned {
		return
	}
	r.cleaned = true
	delete(r.session.requests, r.id)

	outcome := "abandoned"
	if r.complete {
		outcome = "complete"
	}
	r.session.stack.metrics.ClientReqDone(r.session.service, r.method, outcome, r.sendTime)
	r.span.End()
}
