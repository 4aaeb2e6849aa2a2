package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shawn/vesta-provisioner/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the provisioner API",
		Long: `Sign a JWT with the provisioner's jwt_secret.

The secret defaults to $VESTAPROV_JWT_SECRET so the same value the server
reads can be reused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or VESTAPROV_JWT_SECRET is required")
			}
			token, err := auth.NewSigner(secret, ttl).Sign(subject)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("VESTAPROV_JWT_SECRET"), "HMAC secret")
	cmd.Flags().StringVar(&subject, "subject", "vestactl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
