package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/osrf/internal/cache"
	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/gateway"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/logger"
	"github.com/amoylab/osrf/pkg/metrics"
	"github.com/amoylab/osrf/pkg/trace"
	"github.com/amoylab/osrf/pkg/version"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of osrf-gateway",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.GatewayCommandName, version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   cnst.GatewayCommandName,
		Short: "OpenSRF HTTP gateway",
		Long:  `osrf-gateway relays HTTP requests to the services on the message bus`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", cnst.OSRFYaml, "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	gin.SetMode(gin.ReleaseMode)
	var opts []gateway.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, gateway.WithMetrics(metrics.New(cfg.Metrics)))
	}

	c, err := cache.New(lg, &cfg.Cache)
	if err != nil {
		lg.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer func() { _ = c.Close() }()

	factory, err := transport.NewFactory(lg, cfg)
	if err != nil {
		lg.Fatal("Failed to initialize transport", zap.Error(err))
	}
	defer func() { _ = factory.Close() }()

	gw, err := gateway.New(ctx, lg, cfg, factory, c, opts...)
	if err != nil {
		lg.Fatal("Failed to start gateway", zap.Error(err))
	}
	defer gw.Close(context.Background())

	if err := gw.Run(ctx); err != nil {
		lg.Error("Gateway stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
