package session

import (
	"context"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/logger"
	"github.com/amoylab/osrf/pkg/metrics"

	"go.uber.org/zap"
)

// RequestHandler answers the requests received by server sessions
type RequestHandler interface {
	HandleRequest(ctx context.Context, ses *ServerSession, req *ServerRequest)
}

// HandlerFunc adapts a function to RequestHandler
type HandlerFunc func(ctx context.Context, ses *ServerSession, req *ServerRequest)

func (f HandlerFunc) HandleRequest(ctx context.Context, ses *ServerSession, req *ServerRequest) {
	f(ctx, ses, req)
}

// Translator localizes status texts
type Translator interface {
	Translate(msgID, locale string, data map[string]any) string
}

// Stack binds one transport endpoint to the registry of the conversations
// it carries and dispatches every inbound envelope to its session. A stack
// belongs to a single execution context.
type Stack struct {
	transport      transport.Transport
	registry       *Registry
	cfg            *config.OSRFConfig
	handler        RequestHandler
	service        string
	locale         string
	requestTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Metrics
	translator     Translator
}

// Option configures a Stack
type Option func(*Stack)

// WithHandler makes the stack serve service: envelopes on unknown threads
// open server sessions whose requests go to h
func WithHandler(service string, h RequestHandler) Option {
	return func(st *Stack) {
		st.service = service
		st.handler = h
	}
}

// WithRegistry shares a registry instead of creating a fresh one
func WithRegistry(r *Registry) Option {
	return func(st *Stack) { st.registry = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(st *Stack) { st.metrics = m }
}

func WithTranslator(t Translator) Option {
	return func(st *Stack) { st.translator = t }
}

// NewStack creates a stack over tr. tr is expected to be connected by the caller.
func NewStack(lg *zap.Logger, tr transport.Transport, cfg *config.OSRFConfig, opts ...Option) *Stack {
	st := &Stack{
		transport:      tr,
		registry:       NewRegistry(),
		cfg:            cfg,
		locale:         cfg.Client.Locale,
		requestTimeout: cfg.Client.RequestTimeout,
		logger:         lg.Named("session"),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.locale == "" {
		st.locale = cnst.DefaultLocale
	}
	st.registry.SetIngress(cfg.Client.Ingress)
	return st
}

func (st *Stack) Transport() transport.Transport { return st.transport }
func (st *Stack) Registry() *Registry            { return st.registry }
func (st *Stack) Service() string                { return st.service }
func (st *Stack) RequestTimeout() time.Duration  { return st.requestTimeout }

// NewClientSession creates and registers a session talking to service
func (st *Stack) NewClientSession(service string) *ClientSession {
	thread := NewThreadID()
	remote := st.cfg.ServiceAddress(service)
	s := &ClientSession{
		Session: Session{
			stack:    st,
			role:     RoleClient,
			thread:   thread,
			service:  service,
			locale:   st.locale,
			remoteID: remote,
			logger:   logger.ForThread(st.logger.Named("client"), service, thread),
		},
		origRemoteID: remote,
		requests:     make(map[int]*ClientRequest),
	}
	st.registry.Put(s)
	st.metrics.SessionOpened(string(RoleClient))
	return s
}

func (st *Stack) newServerSession(thread string) *ServerSession {
	return &ServerSession{
		Session: Session{
			stack:   st,
			role:    RoleServer,
			thread:  thread,
			service: st.service,
			locale:  st.locale,
			logger:  logger.ForThread(st.logger.Named("server"), st.service, thread),
		},
		callbacks: make(map[string]Callback),
		data:      make(map[string]any),
	}
}

// Receive waits up to timeout for one envelope and dispatches it. It
// returns the conversation the envelope belonged to, or nil.
func (st *Stack) Receive(ctx context.Context, timeout time.Duration) (Conversation, error) {
	env, err := st.transport.Receive(ctx, timeout)
	if err != nil || env == nil {
		return nil, err
	}
	return st.Push(ctx, env)
}

// Push dispatches every message of env to the session owning its thread.
// Server stacks open a session for unknown threads; client stacks log and
// drop such envelopes.
func (st *Stack) Push(ctx context.Context, env *transport.Envelope) (Conversation, error) {
	conv := st.registry.Get(env.Thread)
	if conv == nil {
		if st.handler == nil {
			st.logger.Warn("dropping envelope for unknown thread",
				zap.String("thread", env.Thread),
				zap.String("sender", env.Sender))
			return nil, nil
		}
		var created bool
		conv, created = st.registry.FindOrCreate(env.Thread, func() Conversation {
			return st.newServerSession(env.Thread)
		})
		if created {
			st.metrics.SessionOpened(string(RoleServer))
		}
	}

	base := conv.Base()
	base.setRemoteID(env.Sender)
	if base.service == "" {
		base.service = st.service
	}
	if base.role == RoleServer && env.Xid != "" {
		base.xid = env.Xid
	}

	msgs, err := protocol.Decode([]byte(env.Body))
	if err != nil {
		base.logger.Error("dropping undecodable envelope",
			zap.String("sender", env.Sender),
			zap.Error(err))
		return conv, nil
	}

	start := time.Now()
	for _, msg := range msgs {
		st.registry.SetIngress(msg.Ingress)
		st.metrics.BusMessage("in", string(msg.Type))
		if base.role == RoleServer && msg.Locale != "" {
			base.locale = msg.Locale
		}
		if err := conv.handleMessage(ctx, msg); err != nil {
			return conv, err
		}
	}
	if base.role == RoleServer {
		base.logger.Debug("message processing duration",
			zap.Int("messages", len(msgs)),
			zap.Duration("duration", time.Since(start)))
	}
	return conv, nil
}

// AtomicRequest calls method on service and returns the content of the
// first response, or nil when none arrived within the request timeout
func (st *Stack) AtomicRequest(ctx context.Context, service, method string, args ...any) (any, error) {
	ses := st.NewClientSession(service)
	defer ses.Cleanup()

	req, err := ses.RequestWithParams(ctx, method, args)
	if err != nil {
		return nil, err
	}
	defer req.Cleanup()

	res, err := req.Recv(ctx, st.requestTimeout)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Content, nil
}

// Close cleans up every registered conversation and detaches the transport
func (st *Stack) Close(ctx context.Context) error {
	for _, thread := range st.registry.Threads() {
		if conv := st.registry.Get(thread); conv != nil {
			conv.Cleanup()
		}
	}
	return st.transport.Disconnect(ctx)
}
