// Package cmd defines the subharvest command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/subharvest/internal/app"
	"github.com/JakeFAU/subharvest/internal/config"
	"github.com/JakeFAU/subharvest/internal/logging"
	"github.com/JakeFAU/subharvest/internal/pipeline"
)

type appKeyType string

const appKey appKeyType = "app"

// App is the part of the service container commands use. Tests swap in a
// fake through newApp.
type App interface {
	Run(ctx context.Context) (pipeline.Result, error)
	Logger() *zap.Logger
	Close()
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

var newLogger = logging.New

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "subharvest",
		Short: "Harvest proxy subscription URLs from channels and sites.",
		Long: `subharvest scrapes public channel previews and configured sites for
subscription URLs, probes each one as a proxy client would, and keeps a
categorized record of airport, clash, and v2 subscriptions across runs.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables override it)")
	cmd.AddCommand(newRunCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command until it finishes or a signal arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
