package cmd

import (
	"fmt"

	"github.com/shawn/vesta-provisioner/internal/provision"
	"github.com/spf13/cobra"
)

func newPasswordCmd() *cobra.Command {
	var minLen, maxLen int
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Generate a password the way the provisioner does",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), provision.GeneratePassword(nil, minLen, maxLen))
			return nil
		},
	}
	cmd.Flags().IntVar(&minLen, "min", 10, "Minimum length (at least 5)")
	cmd.Flags().IntVar(&maxLen, "max", 14, "Maximum length (at most 14)")
	return cmd
}
