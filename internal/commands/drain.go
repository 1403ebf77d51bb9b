package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// NewDrainCommand creates the drain command
func NewDrainCommand(global *GlobalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver every payload waiting in the queue",
		Long: `Sends the payloads left in a durable queue by earlier runs, oldest first.

Drain stops at the first failure that leaves a payload queued.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, global, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			a.start()
			return a.waitDrained(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait for the queue to drain")

	return cmd
}
