package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/custody/internal/control"
	"github.com/vietddude/custody/internal/core/config"
)

// One-shot hot wallet initializer for provisioning scripts. Prints the
// address and exits 0 whether the wallet was created or already existed.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found")
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.RFC3339,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := control.NewApp(ctx, *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	addr, _, err := app.Accounts.InitHotWallet(ctx)
	if err != nil {
		slog.Error("Failed to initialize hot wallet", "error", err)
		app.Close()
		os.Exit(1)
	}
	fmt.Println(addr)
}
