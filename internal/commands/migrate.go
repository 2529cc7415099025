package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"unity/internal/app/bootstrap"
)

func newMigrateCommand(factory RuntimeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables or indexes for the configured storage driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, factory, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := rt.Migrate(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrated %s storage\n", rt.Config.StorageDriver)
				return err
			})
		},
	}
}
