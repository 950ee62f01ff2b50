package main

import (
	"context"
	"fmt"

	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/VadimShubkin/ii/infrastructure/di"
	"github.com/VadimShubkin/ii/pkg/common"

	"github.com/spf13/cobra"
)

var (
	// container is built before any subcommand runs
	container *di.Container
	cleanup   = func() {}

	// newContainer is replaced in tests
	newContainer = func(ctx context.Context) (*di.Container, func(), error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return di.InitializeContainer(ctx, cfg)
	}

	operator     string
	operatorRole string
)

var rootCmd = &cobra.Command{
	Use:           "topicctl",
	Short:         "Administer the topic graph",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["container"] == "none" {
			return nil
		}
		c, done, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		container, cleanup = c, done
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&operator, "as", "topicctl", "Actor recorded for writes")
	rootCmd.PersistentFlags().StringVar(&operatorRole, "role", "admin", "Role the operator acts with")
}

// operatorContext carries the operator identity the moderation policy sees
func operatorContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = common.WithUserID(ctx, operator)
	return common.WithUserRoles(ctx, []string{operatorRole})
}
