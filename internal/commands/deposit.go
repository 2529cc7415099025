package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	bankinghttp "unity/contexts/finance-core/banking-service/transport/http"
	"unity/internal/app/bootstrap"
)

func newDepositCommand(factory RuntimeFactory) *cobra.Command {
	var reference string
	var requestID string

	cmd := &cobra.Command{
		Use:   "deposit <user-id> <amount>",
		Short: "Credit an account and record a deposit transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				requestID = "cli:" + uuid.NewString()
			}
			return withRuntime(cmd, factory, func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Banking.Handler.DepositHandler(ctx, args[0], bankinghttp.DepositRequest{
					Amount:    args[1],
					Reference: reference,
					RequestID: requestID,
				})
				if err != nil {
					return fmt.Errorf("deposit: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "free-text reference stored on the transaction")
	cmd.Flags().StringVar(&requestID, "request-id", "", "replay-safe request id (generated when empty)")

	return cmd
}
