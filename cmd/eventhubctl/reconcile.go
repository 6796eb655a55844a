package main

import (
	"context"
	"fmt"

	"github.com/dalemusser/eventhub/internal/app/system/directory"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var reconcileOrg string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-roles",
	Short: "Heal organization and user role mirrors from member records",
	Long: "reconcile-roles backfills incomplete member records and rewrites any " +
		"organizations.members or users.organizations entry that disagrees with " +
		"organization_members. Without --org every organization is swept.",
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileOrg, "org", "", "only this organization id")
	rootCmd.AddCommand(reconcileCmd)
}

// Reconciler is the part of *directory.Directory this command drives.
type Reconciler interface {
	ReconcileOrganization(ctx context.Context, orgID primitive.ObjectID) (directory.Report, error)
	ReconcileAll(ctx context.Context) (directory.Report, error)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, closeFn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := reconcile(ctx, svc.Directory, reconcileOrg)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}

func reconcile(ctx context.Context, rec Reconciler, orgHex string) (directory.Report, error) {
	if orgHex == "" {
		return rec.ReconcileAll(ctx)
	}
	id, err := primitive.ObjectIDFromHex(orgHex)
	if err != nil {
		return directory.Report{}, fmt.Errorf("invalid --org %q: %w", orgHex, err)
	}
	return rec.ReconcileOrganization(ctx, id)
}
