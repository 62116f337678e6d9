package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/osrf/internal/app"
	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/i18n"
	"github.com/amoylab/osrf/internal/journal"
	"github.com/amoylab/osrf/internal/server"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/helper"
	"github.com/amoylab/osrf/pkg/logger"
	"github.com/amoylab/osrf/pkg/metrics"
	"github.com/amoylab/osrf/pkg/trace"
	"github.com/amoylab/osrf/pkg/utils"
	"github.com/amoylab/osrf/pkg/version"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	configPath string
	service    string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of osrf-server",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.ServerCommandName, version.Get())
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the osrf-server hosting the configured service",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, _, err := config.LoadConfig(configPath)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			if service != "" {
				cfg.Server.Service = service
			}
			if err := utils.NewPIDFile(helper.GetPIDPath(cfg.PID, cfg.Server.Service)).Signal(syscall.SIGTERM); err != nil {
				log.Fatalf("Failed to stop %s: %v", cnst.ServerCommandName, err)
			}
			fmt.Println("Stop signal sent")
		},
	}

	rootCmd = &cobra.Command{
		Use:   cnst.ServerCommandName,
		Short: "OpenSRF service host",
		Long:  `osrf-server hosts one service on the message bus with a pool of worker drones`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", cnst.OSRFYaml, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&service, "service", "", "service to host, overrides server.service")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(stopCmd)
}

// newApplication picks the application implementing the configured service
func newApplication(lg *zap.Logger, cfg *config.OSRFConfig, opts ...app.Option) *app.Application {
	switch cfg.Server.Service {
	case app.ServiceMath:
		return app.NewMath(lg, opts...)
	case app.ServiceDBMath:
		return app.NewDBMath(lg, opts...)
	default:
		return app.New(lg, cfg.Server.Service, opts...)
	}
}

func startMetricsServer(lg *zap.Logger, cfg config.MetricsConfig, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, otelhttp.NewHandler(m.Handler(), "metrics"))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		lg.Info("Starting metrics server", zap.String("addr", srv.Addr), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if service != "" {
		cfg.Server.Service = service
	}
	if cfg.Server.Service == "" {
		log.Fatal("No service configured, set server.service or --service")
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("Loaded configuration", zap.String("path", cfgPath), zap.String("version", version.Get()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
		if err != nil {
			lg.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
		msrv := startMetricsServer(lg, cfg.Metrics, m)
		defer func() { _ = msrv.Close() }()
	}

	j, err := journal.New(&cfg.Journal)
	if err != nil {
		lg.Fatal("Failed to open journal", zap.String("type", cfg.Journal.Type), zap.Error(err))
	}
	defer func() { _ = j.Close() }()

	translator, err := i18n.Load(cfg.I18n.Path)
	if err != nil {
		lg.Fatal("Failed to load translations", zap.String("path", cfg.I18n.Path), zap.Error(err))
	}

	factory, err := transport.NewFactory(lg, cfg)
	if err != nil {
		lg.Fatal("Failed to initialize transport", zap.Error(err))
	}
	defer func() { _ = factory.Close() }()

	pid := utils.NewPIDFile(helper.GetPIDPath(cfg.PID, cfg.Server.Service))
	if err := pid.Write(); err != nil {
		lg.Fatal("Failed to write PID file", zap.String("path", pid.Path()), zap.Error(err))
	}
	defer func() { _ = pid.Remove() }()

	application := newApplication(lg, cfg, app.WithJournal(j), app.WithMetrics(m))
	srv := server.New(lg, cfg, factory, application.Service(), application,
		server.WithMetrics(m),
		server.WithTranslator(translator))

	if err := srv.Run(ctx); err != nil {
		lg.Error("Service stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
