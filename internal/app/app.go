package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/journal"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/pkg/errors"
	"github.com/amoylab/osrf/pkg/metrics"
	"github.com/amoylab/osrf/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const atomicSuffix = ".atomic"

// journalKey marks server sessions already recorded in the journal
const journalKey = "journal.session"

// Handler runs one call. params holds at least Argc values. A non-nil
// result is sent together with the completion status; streaming handlers
// send partial results through req.Respond and usually return nil.
type Handler func(ctx context.Context, req *session.ServerRequest, params []any) (any, error)

// Method describes a callable method of an application
type Method struct {
	Name    string
	Handler Handler
	Argc    int    // minimum number of params
	Stream  bool   // also registers <name>.atomic
	Atomic  bool   // responses are delivered as one batch
	Desc    string // shown by introspection
}

type (
	// Application is the set of methods a service exposes
	Application struct {
		service string
		mu      sync.RWMutex
		methods map[string]*Method
		journal journal.Journal
		metrics *metrics.Metrics
		logger  *zap.Logger
	}

	// Option configures an Application
	Option func(*Application)
)

var _ session.RequestHandler = (*Application)(nil)

// WithJournal records every served call in j
func WithJournal(j journal.Journal) Option {
	return func(a *Application) { a.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Application) { a.metrics = m }
}

// New creates an application for service with the system methods registered
func New(logger *zap.Logger, service string, opts ...Option) *Application {
	a := &Application{
		service: service,
		methods: make(map[string]*Method),
		journal: journal.Noop{},
		logger:  logger.Named("app").With(zap.String("service", service)),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registerSysMethods()
	return a
}

// Service returns the name of the service the application implements
func (a *Application) Service() string {
	return a.service
}

// RegisterMethod adds m. Streaming methods also get an atomic variant.
func (a *Application) RegisterMethod(m Method) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.methods[m.Name]; ok {
		return errors.ErrDuplicateMethod(m.Name)
	}
	a.methods[m.Name] = &m

	if m.Stream {
		atomic := m
		atomic.Name += atomicSuffix
		atomic.Atomic = true
		atomic.Stream = false
		a.methods[atomic.Name] = &atomic
	}
	a.logger.Debug("registered method", zap.String("method", m.Name), zap.Bool("stream", m.Stream))
	return nil
}

// Method returns the method registered under name
func (a *Application) Method(name string) (*Method, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.methods[name]
	return m, ok
}

// Methods returns every registered method ordered by name
func (a *Application) Methods() []*Method {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Method, 0, len(a.methods))
	for _, m := range a.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HandleRequest runs the method named by req and answers on ses
func (a *Application) HandleRequest(ctx context.Context, ses *session.ServerSession, req *session.ServerRequest) {
	start := time.Now()
	status := a.serve(ctx, ses, req)
	a.record(ctx, ses, req, status, time.Since(start))
}

func (a *Application) serve(ctx context.Context, ses *session.ServerSession, req *session.ServerRequest) (status protocol.StatusCode) {
	m, ok := a.Method(req.Method())
	if !ok {
		a.logger.Warn("method not found", zap.Error(errors.ErrMethodNotFound(req.Method(), a.service)))
		if err := ses.SendMethodNotFound(ctx, req.ID(), req.Method()); err != nil {
			a.logger.Error("failed to send method not found", zap.Error(err))
		}
		return protocol.StatusNotFound
	}

	params := req.Params()
	a.logger.Info("CALL",
		zap.String("method", m.Name),
		zap.String("params", formatParams(params)),
		zap.String("thread", ses.Thread()),
		zap.String("xid", ses.Xid()))

	if len(params) < m.Argc {
		err := errors.ErrNotEnoughParams(m.Name, m.Argc, len(params))
		a.fail(ctx, ses, req, protocol.StatusBadRequest, err)
		return protocol.StatusBadRequest
	}

	span := trace.Tracer(cnst.TraceSession).Start(ctx, cnst.SpanServerMethodPrefix+m.Name).WithAttrs(
		attribute.String(cnst.AttrService, a.service),
		attribute.String(cnst.AttrMethod, m.Name),
		attribute.String(cnst.AttrThread, ses.Thread()),
		attribute.Int(cnst.AttrThreadTrace, req.ID()),
	)
	defer span.End()

	callStart := time.Now()
	a.metrics.CallStart(m.Name)
	defer func() { a.metrics.CallDone(m.Name, int(status), callStart) }()
	defer func() { span.Status(int(status), status.String()) }()

	req.SetAtomic(m.Atomic)
	result, err := a.invoke(ctx, m, req, params)
	if err != nil {
		span.Fail(err)
		a.fail(ctx, ses, req, protocol.StatusInternalServerError, err)
		return protocol.StatusInternalServerError
	}

	if err := req.RespondComplete(ctx, result); err != nil {
		a.logger.Error("failed to send response", zap.String("method", m.Name), zap.Error(err))
		return protocol.StatusInternalServerError
	}
	return protocol.StatusComplete
}

// invoke runs the handler, turning a panic into an error
func (a *Application) invoke(ctx context.Context, m *Method, req *session.ServerRequest, params []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic recovered", zap.String("method", m.Name), zap.Any("error", r))
			err = fmt.Errorf("%v", r)
		}
	}()
	return m.Handler(ctx, req, params)
}

func (a *Application) fail(ctx context.Context, ses *session.ServerSession, req *session.ServerRequest, code protocol.StatusCode, err error) {
	a.logger.Error("error running method",
		zap.String("method", req.Method()),
		zap.String("params", formatParams(req.Params())),
		zap.Error(err))
	if err := ses.SendException(ctx, req.ID(), code, err.Error()); err != nil {
		a.logger.Error("failed to send exception", zap.Error(err))
	}
}

func (a *Application) record(ctx context.Context, ses *session.ServerSession, req *session.ServerRequest, status protocol.StatusCode, elapsed time.Duration) {
	if _, ok := a.journal.(journal.Noop); ok {
		return
	}
	if _, ok := ses.Data()[journalKey]; !ok {
		exists, err := a.journal.SessionExists(ctx, ses.Thread())
		if err == nil && !exists {
			err = a.journal.CreateSession(ctx, ses.Thread(), a.service)
		}
		if err != nil {
			a.logger.Warn("failed to record session", zap.String("thread", ses.Thread()), zap.Error(err))
			return
		}
		ses.Data()[journalKey] = true
	}

	err := a.journal.SaveCall(ctx, &journal.Call{
		SessionID:   ses.Thread(),
		ThreadTrace: req.ID(),
		Service:     a.service,
		Method:      req.Method(),
		Params:      formatParams(req.Params()),
		StatusCode:  int(status),
		Duration:    elapsed,
		Timestamp:   time.Now(),
	})
	if err != nil {
		a.logger.Warn("failed to record call", zap.String("method", req.Method()), zap.Error(err))
	}
}

// formatParams renders params as the comma separated JSON values of the call
func formatParams(params []any) string {
	data, err := json.Marshal(params)
	if err != nil || len(data) < 2 {
		return ""
	}
	return string(data[1 : len(data)-1])
}
