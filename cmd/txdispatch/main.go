// ====================================
// File: cmd/txdispatch/main.go
// ====================================
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/bot"
	"github.com/rovshanmuradov/txdispatch/internal/config"
	"github.com/rovshanmuradov/txdispatch/internal/ui"
	"github.com/rovshanmuradov/txdispatch/internal/utils/logger"
)

// app держит состояние, общее для всех команд.
type app struct {
	configPath string
	envFile    string
	noConfirm  bool

	cfg     *config.Config
	logger  *logger.Logger
	runner  *bot.Runner
	printer *ui.StatusPrinter
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand(os.Stdout)
	err := root.ExecuteContext(ctx)
	a.teardown(ctx)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) (*cobra.Command, *app) {
	a := &app{printer: ui.NewStatusPrinter(out)}

	root := &cobra.Command{
		Use:          "txdispatch",
		Short:        "Build, sign, submit and confirm Solana transactions",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file (json/yaml); env TXDISPATCH_* only when empty")
	root.PersistentFlags().StringVar(&a.envFile, "env", ".env", "dotenv file with secrets, ignored when missing")
	root.PersistentFlags().BoolVar(&a.noConfirm, "no-confirm", false, "return right after submission")

	root.AddCommand(
		newTransferCommand(a),
		newBatchCommand(a),
		newBalanceCommand(a),
	)
	return root, a
}

func (a *app) setup() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.noConfirm {
		cfg.Commitment = ""
	}
	a.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	if cfg.DebugLogging {
		logCfg.Level = "debug"
		logCfg.Development = true
	}
	a.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a.runner, err = bot.NewRunner(cfg, a.logger.WithComponent("runner"))
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		if _, err := a.runner.ServeMetrics(cfg.MetricsAddr); err != nil {
			return err
		}
	}
	a.logger.Debug("Configuration loaded",
		zap.Int("rpc_nodes", len(cfg.RPCList)),
		zap.String("wallet", cfg.Wallet.Type),
		zap.String("commitment", cfg.Commitment))
	return nil
}

func (a *app) teardown(ctx context.Context) {
	if a.runner != nil {
		if err := a.runner.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
