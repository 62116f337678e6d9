package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amoylab/osrf/internal/app"
	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/logger"
	"github.com/amoylab/osrf/pkg/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	locale     string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of srfsh",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.ShellCommandName, version.Get())
		},
	}

	requestCmd = &cobra.Command{
		Use:   "request <service> <method> [json-param...]",
		Short: "Call a method and print every response",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[2:])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(ctx context.Context, st *session.Stack) error {
				return request(ctx, st, cmd.OutOrStdout(), args[0], args[1], params)
			})
		},
	}

	introspectCmd = &cobra.Command{
		Use:   "introspect <service> [prefix]",
		Short: "List the methods a service publishes",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(ctx context.Context, st *session.Stack) error {
				return introspect(ctx, st, cmd.OutOrStdout(), args[0], args[1:]...)
			})
		},
	}

	timeCmd = &cobra.Command{
		Use:   "time <service>",
		Short: "Print the clock of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(ctx context.Context, st *session.Stack) error {
				return request(ctx, st, cmd.OutOrStdout(), args[0], app.MethodSystemTime, nil)
			})
		},
	}

	mathCmd = &cobra.Command{
		Use:   "math <add|sub|mult|div> <x> <y>",
		Short: "Run an arithmetic method on opensrf.math",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(ctx context.Context, st *session.Stack) error {
				return request(ctx, st, cmd.OutOrStdout(), app.ServiceMath, args[0], params)
			})
		},
	}

	rootCmd = &cobra.Command{
		Use:          cnst.ShellCommandName,
		Short:        "OpenSRF shell",
		Long:         `srfsh sends requests to services on the message bus and prints their responses`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", cnst.OSRFYaml, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "", "locale sent with every request")
	rootCmd.AddCommand(versionCmd, requestCmd, introspectCmd, timeCmd, mathCmd)
}

// withStack connects one bus endpoint for the duration of fn
func withStack(ctx context.Context, fn func(context.Context, *session.Stack) error) error {
	cfg, _, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if locale != "" {
		cfg.Client.Locale = locale
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	factory, err := transport.NewFactory(lg, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = factory.Close() }()

	tr := factory.Open(cnst.ShellCommandName)
	if err := tr.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to the bus: %w", err)
	}
	st := session.NewStack(lg, tr, cfg)
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			lg.Warn("failed to close endpoint", zap.Error(err))
		}
	}()
	return fn(ctx, st)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.SetFlags(0)
		log.Print(err)
		os.Exit(1)
	}
}
