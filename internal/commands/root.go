package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"unity/internal/app/bootstrap"
	"unity/internal/platform/config"
)

// RuntimeFactory builds the runtime a command operates on.
type RuntimeFactory func(ctx context.Context) (*bootstrap.Runtime, error)

// DefaultRuntime loads config from the environment and connects to shared
// storage. In-memory storage is rejected since nothing would persist.
func DefaultRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StorageDriver == config.StorageMemory {
		return nil, errors.New("unityctl needs STORAGE_DRIVER=postgres or mongo")
	}
	return bootstrap.NewRuntime(ctx, cfg, "unityctl")
}

// NewRootCommand creates the operator CLI with all subcommands registered.
func NewRootCommand(factory RuntimeFactory) *cobra.Command {
	if factory == nil {
		factory = DefaultRuntime
	}
	rootCmd := &cobra.Command{
		Use:   "unityctl",
		Short: "Operator tooling for the Unity banking service",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newDepositCommand(factory))
	rootCmd.AddCommand(newAccountCommand(factory))
	rootCmd.AddCommand(newMigrateCommand(factory))

	return rootCmd
}

func withRuntime(cmd *cobra.Command, factory RuntimeFactory, fn func(context.Context, *bootstrap.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := factory(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
