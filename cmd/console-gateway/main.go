package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haulstack/console-gateway/internal/app"
	"github.com/haulstack/console-gateway/internal/config"
	"github.com/haulstack/console-gateway/internal/security"
	"github.com/haulstack/console-gateway/internal/tools/common"
	"github.com/haulstack/console-gateway/internal/tools/obscheck"
	"github.com/haulstack/console-gateway/internal/tools/sessionwatch"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "console-gateway",
		Short:         "Per-terminal session gateway for the logistics console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file loaded before config")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.LoadEnvFile(envFile); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			a, cleanup, err := app.Initialize(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}

	var watchURL string
	watch := &cobra.Command{
		Use:   "sessionwatch",
		Short: "Live terminal view of the gateway's session and timeout state",
		RunE: func(*cobra.Command, []string) error {
			return sessionwatch.Run(watchURL)
		},
	}
	watch.Flags().StringVar(&watchURL, "base-url", "http://127.0.0.1:4600", "gateway base URL")

	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a vault seal key",
		RunE: func(*cobra.Command, []string) error {
			key, err := security.NewSealKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}

	root.AddCommand(serve, watch, keygen, obscheck.NewRootCommand())
	return root
}
