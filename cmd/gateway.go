package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"valorbot/pkg/channel/telegram"
	"valorbot/pkg/config"
	"valorbot/pkg/gateway"
	"valorbot/pkg/logger"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the Telegram bot",
	Long:  "Runs Valorbot against Telegram long polling with health, readiness and status endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		adapter, err := telegram.NewAdapter(cfg.Telegram, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(runCtx, cfg, adapter, cmd.OutOrStdout(), log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started",
			"channel", adapter.Name(),
			"provider", cfg.Agent.Provider,
			"model", cfg.Agent.Model,
			"allowed_groups", len(cfg.Telegram.AllowedGroups),
			"allow_dms", cfg.Telegram.AllowDMs,
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
