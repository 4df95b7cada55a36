package opsctl

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/engine/orchestrator"
)

func newSweepCmd(a *app) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Resolve overdue verifications, rentals and stuck provisioning once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd.Context(), func(b *Backend) error {
				report, err := b.Orchestrator.SweepDue(cmd.Context(), time.Now().UTC(), batch)
				if err != nil {
					return err
				}
				return a.printJSON(report)
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "Rows per query, 0 uses the configured batch size")
	return cmd
}

func newQuoteCmd(a *app) *cobra.Command {
	var (
		q          orchestrator.QuoteCommand
		capability string
		plan       string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview the price of a verification or rental for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Capability = shared.Capability(capability)
			q.Plan = shared.Plan(plan)
			return a.withBackend(cmd.Context(), func(b *Backend) error {
				quote, err := b.Orchestrator.Quote(cmd.Context(), q)
				if err != nil {
					return err
				}
				return a.printJSON(quote)
			})
		},
	}
	cmd.Flags().StringVar(&q.UserID, "user", "", "User the volume discount is computed for")
	cmd.Flags().StringVar(&q.ServiceID, "service", "", "Service id, e.g. whatsapp")
	cmd.Flags().StringVar(&capability, "capability", string(shared.CapabilitySMS), "sms or voice")
	cmd.Flags().StringVar(&plan, "plan", string(shared.PlanPayAsYouGo), "Pricing plan")
	cmd.Flags().IntVar(&q.RentalDays, "days", 0, "Rental days, 0 quotes a verification")
	cmd.Flags().StringSliceVar(&q.Addons, "addons", nil, "Comma separated add-ons")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}
