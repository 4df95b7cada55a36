package opsctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/domain/shared"
)

func newBannedCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "banned <service-id>",
		Short: "List numbers banned for a service, most failures first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), func(b *Backend) error {
				records, err := b.Banned.Report(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintf(a.out, "No banned numbers for %s\n", args[0])
					return nil
				}
				for _, r := range records {
					fmt.Fprintf(a.out, "%s\t%d\t%s\n", r.PhoneNumber, r.FailCount, r.LastFailedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	return cmd
}

// The token command only needs the signing secret and never connects.
func newTokenCmd(a *app) *cobra.Command {
	var (
		plan string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user, for support and testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !shared.Plan(plan).Valid() {
				return shared.NewValidationError("plan", "must be one of payg starter pro enterprise")
			}
			if ttl <= 0 {
				return shared.NewValidationError("ttl", "must be positive")
			}
			cfg, err := a.loadConfig(a.configName)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, args[0], shared.Plan(plan), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&plan, "plan", string(shared.PlanPayAsYouGo), "Pricing plan claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
