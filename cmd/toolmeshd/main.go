package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"toolmesh/internal/app"
	"toolmesh/internal/infra/catalog"
)

type rootOptions struct {
	configPath string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := rootOptions{
		configPath: "toolmesh.yaml",
	}

	root := &cobra.Command{
		Use:   "toolmeshd",
		Short: "Tool-server orchestration daemon",
	}

	root.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to config file")

	root.AddCommand(
		newServeCmd(logger, &opts),
		newValidateCmd(logger, &opts),
		newDiscoverCmd(logger, &opts),
	)

	return root
}

func newServeCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := app.New(ctx, opts.configPath, app.AppOptions{Logger: logger})
			if err != nil {
				return err
			}
			return application.Run(ctx)
		},
	}
}

func newValidateCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file without connecting to servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := catalog.NewLoader(logger).Load(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d servers\n", len(loaded.Servers))
			return nil
		},
	}
}

func newDiscoverCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Connect to every server, run one discovery pass and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := app.New(ctx, opts.configPath, app.AppOptions{Logger: logger})
			if err != nil {
				return err
			}
			results := application.RunDiscovery(ctx)
			for _, result := range results {
				if !result.Success {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED (%s)\n", result.ServerName, result.ErrorMessage)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tools (+%d ~%d -%d) in %s\n",
					result.ServerName, result.ToolsDiscovered,
					result.ToolsAdded, result.ToolsUpdated, result.ToolsRemoved,
					result.DiscoveryTime)
			}
			return nil
		},
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
