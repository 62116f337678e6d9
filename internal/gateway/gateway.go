package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/amoylab/osrf/internal/cache"
	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the graceful HTTP shutdown
const shutdownTimeout = 5 * time.Second

type (
	// Gateway bridges HTTP callers to the services on the bus. Every
	// in-flight HTTP request holds one bus endpoint of the pool.
	Gateway struct {
		logger  *zap.Logger
		cfg     *config.OSRFConfig
		factory *transport.Factory
		cache   cache.Cache
		metrics *metrics.Metrics
		pool    chan *session.Stack
		router  *gin.Engine
	}

	// Option configures a Gateway
	Option func(*Gateway)
)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New connects the endpoint pool and builds the HTTP routes
func New(ctx context.Context, logger *zap.Logger, cfg *config.OSRFConfig, factory *transport.Factory, c cache.Cache, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		logger:  logger.Named("gateway"),
		cfg:     cfg,
		factory: factory,
		cache:   c,
		pool:    make(chan *session.Stack, cfg.Gateway.Workers),
	}
	for _, opt := range opts {
		opt(g)
	}

	for i := 0; i < cfg.Gateway.Workers; i++ {
		tr := factory.Open("gateway")
		if err := tr.Connect(ctx); err != nil {
			g.Close(ctx)
			return nil, fmt.Errorf("failed to connect gateway endpoint: %w", err)
		}
		g.pool <- session.NewStack(g.logger, tr, cfg, session.WithMetrics(g.metrics))
	}

	g.router = g.newRouter()
	return g, nil
}

func (g *Gateway) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware(cnst.GatewayCommandName))
	r.Use(g.recoveryMiddleware())
	r.Use(g.loggerMiddleware())
	r.Use(g.metrics.Middleware())

	r.GET(cnst.GatewayPath, g.handleGateway)
	r.POST(cnst.GatewayPath, g.handleGateway)
	r.POST(cnst.TranslatorPath, g.handleTranslator)
	if g.metrics != nil {
		r.GET(g.cfg.Metrics.Path, gin.WrapH(g.metrics.Handler()))
	}
	return r
}

// Handler returns the HTTP handler serving the gateway routes
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Run serves HTTP on the configured port until ctx is done
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", g.cfg.Gateway.Port),
		Handler: g.router,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("starting gateway", zap.String("addr", srv.Addr), zap.Int("workers", g.cfg.Gateway.Workers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		g.logger.Error("failed to shutdown gateway", zap.Error(err))
		return err
	}
	g.logger.Info("gateway stopped")
	return nil
}

// acquire takes an endpoint from the pool, waiting until one is free
func (g *Gateway) acquire(ctx context.Context) (*session.Stack, error) {
	select {
	case st := <-g.pool:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release hands st back to the pool, reattaching its endpoint if the bus dropped it
func (g *Gateway) release(ctx context.Context, st *session.Stack) {
	if tr := st.Transport(); !tr.Connected() {
		if err := tr.Connect(ctx); err != nil {
			g.logger.Warn("failed to reconnect gateway endpoint",
				zap.String("address", tr.Address()),
				zap.Error(err))
		}
	}
	g.pool <- st
}

// Close detaches every idle endpoint of the pool
func (g *Gateway) Close(ctx context.Context) {
	for {
		select {
		case st := <-g.pool:
			if err := st.Close(ctx); err != nil {
				g.logger.Warn("failed to close gateway endpoint", zap.Error(err))
			}
		default:
			return
		}
	}
}
