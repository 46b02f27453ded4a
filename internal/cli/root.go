package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Token   string
	Format  string // "json" | "text"
	Timeout time.Duration

	now func() time.Time
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{now: time.Now}

	cmd := &cobra.Command{
		Use:   "tokenctl",
		Short: "Issue and redeem usage-capped tokens",
		Long:  "tokenctl talks to the token service over HTTP: create tokens for a user and spend their usages.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", "http://localhost:8080", "token service base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token, if the service requires auth")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(NewGetTokenCommand(opts))
	cmd.AddCommand(NewUseTokenCommand(opts))

	return cmd
}

// newTxnKey builds a fresh idempotency key from the current time.
func (o *RootOptions) newTxnKey() string {
	return fmt.Sprintf("TXN%d", o.now().UnixMilli())
}

func (o *RootOptions) client() *Client {
	return NewClient(o.Server, o.Token, o.Timeout)
}
