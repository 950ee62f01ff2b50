package main

import (
	"errors"
	"time"

	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/VadimShubkin/ii/pkg/auth"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:         "token [user-id]",
	Short:       "Issue an API token signed with JWT_SECRET",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"container": "none"},
	RunE:        runToken,
}

var (
	tokenRoles []string
	tokenTTL   time.Duration
)

func init() {
	tokenCmd.Flags().StringSliceVarP(&tokenRoles, "roles", "r", nil, "Roles carried by the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	gen, err := auth.NewGenerator(auth.Config{
		SecretKey:  cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		ExpiryTime: tokenTTL,
	})
	if err != nil {
		return err
	}
	token, err := gen.GenerateToken(args[0], "", tokenRoles)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
