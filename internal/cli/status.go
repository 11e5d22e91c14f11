package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/custody/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scanner position, pending work and hot wallet balances",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	// Load the persisted cursor so the report shows it.
	if height, err := app.Gateway.CurrentHeight(ctx); err == nil {
		_, _ = app.Cursor.Load(ctx, height, cfg.Engine.RequiredConfirmations)
	}
	report := app.Health.CheckHealth(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tHEIGHT\tLAST BLOCK\tLAG\tPENDING\tUNSWEPT")
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
		report.Status, report.ChainHeight, report.ScannerLastBlock,
		report.BlockLag, report.PendingDeposits, report.UnsweptDeposits)
	_ = w.Flush()

	for _, e := range report.Errors {
		fmt.Println("error:", e)
	}

	balances, err := app.Sweeper.HotWalletBalances(ctx)
	switch {
	case errors.Is(err, domain.ErrHotWalletNotConfigured):
		fmt.Println("\nHot wallet not configured (run: custody hot-wallet init)")
	case err != nil:
		fmt.Println("\nHot wallet balances unavailable:", err)
	default:
		fmt.Printf("\nHot wallet %s: %s token, %s native\n",
			balances.Address, balances.TokenBalance, balances.NativeBalance)
	}
}
