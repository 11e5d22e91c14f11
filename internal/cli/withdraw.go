package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vietddude/custody/internal/core/domain"
)

var (
	withdrawNotes string
	historyLimit  int
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw [to_address] [amount]",
	Short: "Send tokens from the hot wallet",
	Args:  cobra.ExactArgs(2),
	Run:   runWithdraw,
}

var withdrawalsCmd = &cobra.Command{
	Use:   "withdrawals",
	Short: "List recent hot wallet withdrawals",
	Args:  cobra.NoArgs,
	Run:   runWithdrawals,
}

func init() {
	withdrawCmd.Flags().StringVar(&withdrawNotes, "notes", "", "free-form note stored with the withdrawal")
	withdrawalsCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of withdrawals to show")
	rootCmd.AddCommand(withdrawCmd, withdrawalsCmd)
}

func runWithdraw(cmd *cobra.Command, args []string) {
	to, err := domain.ParseAddress(args[0])
	if err != nil {
		fmt.Printf("Invalid address: %v\n", err)
		os.Exit(1)
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		fmt.Printf("Invalid amount: %v\n", err)
		os.Exit(1)
	}

	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	w, err := app.Sweeper.Withdraw(ctx, to, amount, withdrawNotes)
	if err != nil {
		if w != nil {
			slog.Error("Withdrawal failed", "id", w.ID, "reason", w.FailureReason, "error", err)
		} else {
			slog.Error("Withdrawal failed", "error", err)
		}
		app.Close()
		os.Exit(1)
	}
	fmt.Printf("Withdrawal %s completed: %s\n", w.ID, w.TxHash)
}

func runWithdrawals(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	list, err := app.Sweeper.Withdrawals(ctx, historyLimit)
	if err != nil {
		slog.Error("Failed to list withdrawals", "error", err)
		app.Close()
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tTO\tAMOUNT\tSTATUS\tTX\tCREATED")
	for _, wd := range list {
		tx := wd.TxHash
		if wd.Status == domain.WithdrawalStatusFailed {
			tx = wd.FailureReason
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wd.ID, wd.ToAddress, wd.Amount, wd.Status, tx, wd.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
