package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type UseTokenOptions struct {
	*RootOptions
	TxnKey string
}

func NewUseTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UseTokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "use-token <user-id> <token-id>",
		Short: "Spend one usage of a token",
		Example: `  tokenctl use-token 42 9f86d081884c7d65...
  tokenctl use-token 42 9f86d081884c7d65... --txn-key TXN1718000000000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return useToken(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.TxnKey, "txn-key", "", "transaction key (default: generated)")

	return cmd
}

func useToken(cmd *cobra.Command, opts *UseTokenOptions, rawUser, tokenID string) error {
	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", rawUser, err)
	}

	key := opts.TxnKey
	if key == "" {
		key = opts.newTxnKey()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	res, err := opts.client().UseToken(ctx, UseTokenRequest{UserID: userID, TokenID: tokenID, TxnKey: key})
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), opts.Format, res)
}
