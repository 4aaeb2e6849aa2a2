package cmd

import (
	stdcontext "context"
	"fmt"

	"github.com/shawn/vesta-provisioner/internal/cli/api"
	"github.com/shawn/vesta-provisioner/internal/cli/output"
	"github.com/spf13/cobra"
)

func newServiceCreateCmd(client api.Client) *cobra.Command {
	var (
		req      api.CreateServiceRequest
		noModule bool
	)
	cmd := &cobra.Command{
		Use:   "create <domain>",
		Short: "Create a new hosting service",
		Long: `Create a hosting account for <domain> on a Vesta panel.

A username is derived from the domain unless --username is given, and a
random password is generated. The password is returned sealed; it is never
printed in clear text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Domain = args[0]
			if noModule {
				useModule := false
				req.UseModule = &useModule
			}

			styler := output.NewStyler(noColor)
			styler.FprintInfo(cmd.OutOrStdout(), fmt.Sprintf("Creating service for '%s'...", req.Domain))

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			resp, err := client.CreateService(ctx, &req)
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to create service: %v", err))
				return err
			}

			styler.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Service '%s' created", resp.Service.ServiceID))
			if outputFormat == "json" {
				jsonStr, err := output.FormatJSON(resp)
				if err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return printService(cmd.OutOrStdout(), styler, &resp.Service)
		},
	}

	cmd.Flags().StringVar(&req.Package, "package", "default", "Hosting package")
	cmd.Flags().StringVar(&req.ServerID, "server", "", "Server id (defaults to the first configured server)")
	cmd.Flags().StringVar(&req.Username, "username", "", "Account username (generated when empty)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Owner email")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "Owner first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Owner last name")
	cmd.Flags().BoolVar(&req.ShellAccess, "shell", false, "Enable SSH shell access")
	cmd.Flags().BoolVar(&noModule, "no-module", false, "Record the service without calling the panel")

	return cmd
}
