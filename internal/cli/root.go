package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/custody/internal/control"
	"github.com/vietddude/custody/internal/core/config"
	"github.com/vietddude/custody/internal/core/domain"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Custodial deposit engine",
	Long: `Custody watches an EVM chain for token deposits into user wallets, credits them
once they are irreversible, and sweeps the funds into the hot wallet.`,
	Run: runEngine,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and the config file and installs the logger.
func setup() config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	} else {
		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}
	return *cfg
}

// openApp builds the application or exits.
func openApp(ctx context.Context, cfg config.AppConfig) *control.App {
	app, err := control.NewApp(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	return app
}

func runEngine(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := openApp(ctx, cfg)
	defer app.Close()

	slog.Info("Custody engine started", "config", cfgPath, "chain_id", cfg.Chain.ChainID)

	if err := app.Run(ctx); err != nil {
		var pe *domain.PersistenceError
		if errors.As(err, &pe) {
			slog.Error("Store unavailable, exiting", "error", err)
		} else {
			slog.Error("Engine failed", "error", err)
		}
		app.Close()
		os.Exit(1)
	}

	slog.Info("Custody engine stopped gracefully")
}
