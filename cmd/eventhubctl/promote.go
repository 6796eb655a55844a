package main

import (
	"fmt"

	"github.com/dalemusser/eventhub/internal/app/bootstrap"
	"github.com/spf13/cobra"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant system_admin to the user with this email",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromote,
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, closeFn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	u, err := bootstrap.PromoteSystemAdmin(ctx, svc.Users, svc.Audit, args[0], logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is %s\n", u.Email, u.ID, u.SystemRole)
	return nil
}
