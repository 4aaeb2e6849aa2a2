package cmd

import (
	stdcontext "context"
	"fmt"

	"github.com/shawn/vesta-provisioner/internal/cli/api"
	"github.com/shawn/vesta-provisioner/internal/cli/output"
	"github.com/spf13/cobra"
)

func newServiceUpdateCmd(client api.Client) *cobra.Command {
	var (
		req      api.UpdateServiceRequest
		shell    bool
		noModule bool
	)
	cmd := &cobra.Command{
		Use:   "update <service-id>",
		Short: "Update service credentials or shell access",
		Long: `Change the password, domain, username or shell access of a service.

At least one of --password, --domain, --username or --shell must be specified.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if !f.Changed("password") && !f.Changed("domain") && !f.Changed("username") && !f.Changed("shell") {
				return fmt.Errorf("at least one of --password, --domain, --username or --shell must be specified")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if cmd.Flags().Changed("shell") {
				req.ShellAccess = &shell
			}
			if noModule {
				useModule := false
				req.UseModule = &useModule
			}

			styler := output.NewStyler(noColor)
			styler.FprintInfo(cmd.OutOrStdout(), fmt.Sprintf("Updating service '%s'...", id))

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			svc, err := client.UpdateService(ctx, id, &req)
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to update service: %v", err))
				return err
			}

			styler.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Service '%s' updated", id))
			return printService(cmd.OutOrStdout(), styler, svc)
		},
	}

	cmd.Flags().StringVar(&req.Password, "password", "", "New password (at least 8 characters)")
	cmd.Flags().StringVar(&req.Domain, "domain", "", "New primary domain")
	cmd.Flags().StringVar(&req.Username, "username", "", "New username")
	cmd.Flags().BoolVar(&shell, "shell", false, "Enable or disable shell access (--shell=false)")
	cmd.Flags().BoolVar(&noModule, "no-module", false, "Update the record without calling the panel")

	return cmd
}
