package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sweepCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and inactive session rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rt.comps.Sessions.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			rt.logger.Info("session sweep finished", zap.Int64("deleted", n))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d session rows\n", n)
			return nil
		},
	}
}
