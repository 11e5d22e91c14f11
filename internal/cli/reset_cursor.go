package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Move the scanner watermark to a given block height",
	Long: `Move the scanner watermark to a given block height, in either direction.
Scanning resumes at block_height+1. Rescanned deposits are recorded once.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	cfg := setup()
	ctx := context.Background()

	app := openApp(ctx, cfg)
	defer app.Close()

	if err := app.Cursor.Reset(ctx, height); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		app.Close()
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor %s to block %d\n", app.Cursor.Name(), height)
}
