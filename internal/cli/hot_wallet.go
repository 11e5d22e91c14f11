package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var hotWalletCmd = &cobra.Command{
	Use:   "hot-wallet",
	Short: "Manage the hot wallet",
}

var hotWalletInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the hot wallet if it does not exist",
	Args:  cobra.NoArgs,
	Run:   runHotWalletInit,
}

var hotWalletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show hot wallet token and native balances",
	Args:  cobra.NoArgs,
	Run:   runHotWalletBalance,
}

func init() {
	hotWalletCmd.AddCommand(hotWalletInitCmd, hotWalletBalanceCmd)
	rootCmd.AddCommand(hotWalletCmd)
}

func runHotWalletInit(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	addr, created, err := app.Accounts.InitHotWallet(ctx)
	if err != nil {
		slog.Error("Failed to initialize hot wallet", "error", err)
		app.Close()
		os.Exit(1)
	}
	if created {
		fmt.Printf("Hot wallet created: %s\n", addr)
		fmt.Println("Fund it with native gas before the first sweep.")
		return
	}
	fmt.Printf("Hot wallet already exists: %s\n", addr)
}

func runHotWalletBalance(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	b, err := app.Sweeper.HotWalletBalances(ctx)
	if err != nil {
		slog.Error("Failed to get hot wallet balances", "error", err)
		app.Close()
		os.Exit(1)
	}
	fmt.Printf("Address: %s\nToken:   %s\nNative:  %s\n", b.Address, b.TokenBalance, b.NativeBalance)
}
