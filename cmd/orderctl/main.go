package main

// orderctl runs one-off operations against the storefront's order store,
// carrier and payment gateway.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Storefront order operations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			envFile, _ := cmd.Flags().GetString("env-file")
			// a missing file is fine; the environment may already be set
			_ = godotenv.Load(envFile)
		},
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load before reading configuration")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(signURLCmd())
	rootCmd.AddCommand(verifyCallbackCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
