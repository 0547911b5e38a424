// Package cmd defines and implements the CLI commands for the dealwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/config"
	"github.com/JakeFAU/dealwatch/internal/server"
	"github.com/JakeFAU/dealwatch/internal/watch"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Tracker is the subset of the tracker service the commands drive.
type Tracker interface {
	Track(ctx context.Context, url, channelID string, budget *int) (string, error)
	Untrack(ctx context.Context, label string) (watch.TrackedSource, error)
	List() []watch.SourceSummary
	SweepAll(ctx context.Context) ([]watch.SweepResult, error)
}

// App defines the application interface that commands will use.
type App interface {
	Run(ctx context.Context) error
	Tracker() Tracker
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// serverApp adapts *server.App to App.
type serverApp struct {
	*server.App
}

func (a serverApp) Tracker() Tracker {
	return a.Service()
}

// newApp is the application factory. Tests replace it with a fake.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return serverApp{a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "dealwatch",
		Short: "Watches marktplaats categories and announces new deals.",
		Long: `dealwatch polls tracked marktplaats.nl category pages on a fixed interval,
drops spam and over-budget listings, and sends exactly one notification for
every listing it has not seen before.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newServeCmd(),
		newSweepCmd(),
		newTrackCmd(),
		newUntrackCmd(),
		newListCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
