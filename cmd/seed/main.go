// seed bulk-loads users with a zero token count.
// Run: go run ./cmd/seed --start 1 --count 100000
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/token-ledger/config"
	"github.com/ErlanBelekov/token-ledger/internal/infrastructure"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type seedOptions struct {
	start int64
	count int64
	batch int
	rate  float64
}

func main() {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Insert users [start, start+count) with no tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

			store, err := infrastructure.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return seedUsers(cmd.Context(), store, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64Var(&opts.start, "start", 1, "first user id")
	cmd.Flags().Int64Var(&opts.count, "count", 1000, "number of users to insert")
	cmd.Flags().IntVar(&opts.batch, "batch", 500, "users per insert statement")
	cmd.Flags().Float64Var(&opts.rate, "rate", 50000, "max users inserted per second")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		stop()
		os.Exit(1)
	}
}

func seedUsers(ctx context.Context, users repository.UserLoader, opts *seedOptions, out io.Writer) error {
	if opts.count <= 0 || opts.batch <= 0 || opts.rate <= 0 {
		return fmt.Errorf("count, batch and rate must be positive")
	}

	limiter := rate.NewLimiter(rate.Limit(opts.rate), max(opts.batch, int(opts.rate)))
	began := time.Now()

	var inserted, skipped int
	end := opts.start + opts.count
	for next := opts.start; next < end; {
		n := min(int64(opts.batch), end-next)
		if err := limiter.WaitN(ctx, int(n)); err != nil {
			return fmt.Errorf("wait: %w", err)
		}

		ids := make([]int64, n)
		for i := range ids {
			ids[i] = next + int64(i)
		}
		created, err := users.CreateUsers(ctx, ids)
		if err != nil {
			return fmt.Errorf("create users %d..%d: %w", next, next+n-1, err)
		}
		inserted += created
		skipped += int(n) - created
		next += n
	}

	fmt.Fprintf(out, "Seed complete: %d users created, %d already existed (%s)\n",
		inserted, skipped, time.Since(began).Round(time.Millisecond))
	return nil
}
