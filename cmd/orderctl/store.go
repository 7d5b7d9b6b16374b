package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitshopapp/storefront/app"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/mongostore"
	"github.com/gitshopapp/storefront/internal/reconcile"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations, or create Mongo indexes",
		Long: `Prepare the order store selected by STORE_DRIVER.

For postgres every embedded migration that has not run yet is applied in
order. For mongo the lookup indexes on the orders collection are created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			logger := slog.Default()
			if cfg.StoreDriver == "mongo" {
				client, err := mongostore.Connect(ctx, cfg.MongoURI)
				if err != nil {
					return err
				}
				defer func() { _ = client.Disconnect(context.Background()) }()

				if err := mongostore.NewOrderStore(client.Database(cfg.MongoDatabase)).EnsureIndexes(ctx); err != nil {
					return fmt.Errorf("failed to ensure indexes: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mongo indexes ensured")
				return nil
			}

			pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: "orderctl", MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool, logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one carrier reconciliation sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.ReconcileConcurrency = concurrency
			}

			application, err := app.NewWithConfig(cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			summary, err := application.Scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summaryView(summary))
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "carrier calls in flight (defaults to RECONCILE_CONCURRENCY)")
	return cmd
}

func summaryView(s reconcile.Summary) map[string]int {
	return map[string]int{
		"checked":   s.Checked,
		"updated":   s.Updated,
		"unchanged": s.Unchanged,
		"failed":    s.Failed,
	}
}
