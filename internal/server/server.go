package server

import (
	"context"
	"errors"
	"time"

	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// listenPoll bounds each wait on the service address so workers notice shutdown
const listenPoll = time.Second

type (
	// Server hosts one service on the bus with a fixed set of workers
	Server struct {
		logger     *zap.Logger
		cfg        *config.OSRFConfig
		factory    *transport.Factory
		handler    session.RequestHandler
		service    string
		metrics    *metrics.Metrics
		translator session.Translator
	}

	// Option configures a Server
	Option func(*Server)
)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithTranslator(t session.Translator) Option {
	return func(s *Server) { s.translator = t }
}

// New creates a server answering requests for service with handler
func New(logger *zap.Logger, cfg *config.OSRFConfig, factory *transport.Factory, service string, handler session.RequestHandler, opts ...Option) *Server {
	s := &Server{
		logger:  logger.Named("server").With(zap.String("service", service)),
		cfg:     cfg,
		factory: factory,
		handler: handler,
		service: service,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the configured number of workers and blocks until ctx is
// done or a worker fails
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting service",
		zap.Int("workers", s.cfg.Server.Workers),
		zap.Duration("keepalive", s.cfg.Server.Keepalive),
		zap.Int("max_requests", s.cfg.Server.MaxRequests))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Server.Workers; i++ {
		w := &worker{
			id:     i,
			server: s,
			logger: s.logger.With(zap.Int("worker", i)),
		}
		g.Go(func() error { return w.run(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.logger.Info("service stopped", zap.Error(err))
	return err
}

func (s *Server) newStack(tr transport.Transport) *session.Stack {
	opts := []session.Option{
		session.WithHandler(s.service, s.handler),
		session.WithMetrics(s.metrics),
	}
	if s.translator != nil {
		opts = append(opts, session.WithTranslator(s.translator))
	}
	return session.NewStack(s.logger, tr, s.cfg, opts...)
}
