package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func forceLogoutCmd(rt *runtime) *cobra.Command {
	var userID, actorID int64

	cmd := &cobra.Command{
		Use:   "force-logout",
		Short: "Revoke every session of a user",
		Long: `Revoke every session of a user in both the session cache and the
registry. Connected browsers are disconnected by the API process the next
time they present the revoked session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user must be a positive id")
			}
			n, err := rt.comps.Sessions.ForceLogout(cmd.Context(), actorID, userID)
			if err != nil {
				return fmt.Errorf("force logout failed: %w", err)
			}
			rt.logger.Info("force logout from sesctl",
				zap.Int64("user_id", userID),
				zap.Int64("actor_id", actorID),
				zap.Int64("revoked", n),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d sessions of user %d\n", n, userID)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "User whose sessions are revoked")
	cmd.Flags().Int64Var(&actorID, "actor", 0, "Operator recorded in the audit log")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
