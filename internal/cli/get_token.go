package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type GetTokenOptions struct {
	*RootOptions
	Usages int
	TTL    time.Duration
	TxnKey string
}

func NewGetTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetTokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get-token <user-id>",
		Short: "Create a token for a user",
		Long: `Create a token for a user.

The transaction key defaults to TXN<unix millis>; pass --txn-key to retry a
previous request safely.

Example:
  tokenctl get-token 42 --usages 5 --ttl 10m`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getToken(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Usages, "usages", 5, "number of times the token can be used")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 10*time.Minute, "time until the token expires")
	cmd.Flags().StringVar(&opts.TxnKey, "txn-key", "", "transaction key (default: generated)")

	return cmd
}

func getToken(cmd *cobra.Command, opts *GetTokenOptions, rawUser string) error {
	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", rawUser, err)
	}
	if opts.Usages < 1 {
		return fmt.Errorf("--usages must be at least 1")
	}

	key := opts.TxnKey
	if key == "" {
		key = opts.newTxnKey()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	res, err := opts.client().CreateToken(ctx, CreateTokenRequest{
		UserID:     userID,
		ExpiryDate: opts.now().Add(opts.TTL).UTC(),
		TxnKey:     key,
		UsageCount: opts.Usages,
	})
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), opts.Format, res)
}
