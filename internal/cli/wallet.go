package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet [user_id]",
	Short: "Show (creating on first use) the deposit wallet of a user",
	Args:  cobra.ExactArgs(1),
	Run:   runWallet,
}

func init() {
	walletCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of deposits to show")
	rootCmd.AddCommand(walletCmd)
}

func runWallet(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	wallet, err := app.Accounts.EnsureWallet(ctx, args[0])
	if err != nil {
		slog.Error("Failed to get wallet", "error", err)
		app.Close()
		os.Exit(1)
	}
	fmt.Printf("User:    %s\nAddress: %s\nBalance: %s\n\n", wallet.UserID, wallet.Address, wallet.Balance)

	deposits, err := app.Ledger.DepositsByWallet(ctx, wallet.ID, historyLimit)
	if err != nil {
		slog.Error("Failed to list deposits", "error", err)
		app.Close()
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TX\tAMOUNT\tBLOCK\tCONFIRMATIONS\tSTATUS\tSWEPT")
	for _, d := range deposits {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%t\n",
			d.TxHash, d.Amount, d.BlockNumber, d.Confirmations, d.Status, d.Swept)
	}
	_ = w.Flush()
}
