package opsctl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/engine/ledger"
)

// GoodwillPrefix marks operator credits in ledger references
const GoodwillPrefix = "goodwill:"

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a user's wallet balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), func(b *Backend) error {
				balance, err := b.Ledger.Balance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\t%d\n", args[0], balance)
				return nil
			})
		},
	}
}

func newEntriesCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "entries <user-id>",
		Short: "List a user's ledger entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > ledger.MaxPageSize {
				return fmt.Errorf("--limit must be between 1 and %d", ledger.MaxPageSize)
			}
			if offset < 0 {
				return fmt.Errorf("--offset cannot be negative")
			}
			return a.withBackend(cmd.Context(), func(b *Backend) error {
				page, err := b.Ledger.History(cmd.Context(), args[0], limit, offset)
				if err != nil {
					return err
				}
				return a.printJSON(page)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of entries to skip")
	return cmd
}

// Goodwill credits are keyed by the operator so running the same command
// twice credits once.
func newGoodwillCmd(a *app) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "goodwill <user-id> <amount>",
		Short: "Credit a user's wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return shared.NewValidationError("amount", "must be a positive integer in minor units")
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return shared.NewValidationError("key", "is required")
			}
			return a.withBackend(cmd.Context(), func(b *Backend) error {
				entry, err := b.Ledger.Credit(cmd.Context(), args[0], amount, GoodwillPrefix+key)
				if err != nil {
					return err
				}
				return a.printJSON(entry)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Unique key for this credit, e.g. a ticket number")
	return cmd
}
