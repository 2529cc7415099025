package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"unity/internal/app/bootstrap"
)

func newAccountCommand(factory RuntimeFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect accounts",
	}
	cmd.AddCommand(newAccountShowCommand(factory))
	return cmd
}

func newAccountShowCommand(factory RuntimeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the dashboard view of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, factory, func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Banking.Handler.DashboardHandler(ctx, args[0])
				if err != nil {
					return fmt.Errorf("load account %s: %w", args[0], err)
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}
