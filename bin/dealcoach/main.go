package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dealcoach/dealcoach/server"
	"github.com/dealcoach/dealcoach/server/profile"
	"github.com/dealcoach/dealcoach/store"
	"github.com/dealcoach/dealcoach/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "dealcoach",
	Short: "Sales conversation coaching backend",
	RunE: func(_ *cobra.Command, _ []string) error {
		// A local .env is a development convenience; absence is fine.
		_ = godotenv.Load()

		p, err := profile.Load()
		if err != nil {
			return errors.Wrap(err, "load profile")
		}

		level := slog.LevelInfo
		if p.IsDev() {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		driver, err := sqlite.NewDB(p.DatabasePath())
		if err != nil {
			return errors.Wrap(err, "open database")
		}
		st := store.New(driver, store.Options{
			QuotaWindow:       p.QuotaWindow,
			DefaultQuotaLimit: p.QuotaDefaultLimit,
		})

		s, err := server.NewServer(ctx, p, st)
		if err != nil {
			return errors.Wrap(err, "create server")
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				slog.Error("server failed", "error", err)
			}
		case <-ctx.Done():
		}

		s.Shutdown(context.Background())
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
