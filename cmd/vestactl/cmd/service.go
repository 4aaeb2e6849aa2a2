package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/shawn/vesta-provisioner/internal/cli/api"
	"github.com/shawn/vesta-provisioner/internal/cli/output"
	"github.com/spf13/cobra"
)

const requestTimeout = 60 * time.Second

func newServiceCmd(client api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"svc"},
		Short:   "Manage hosting services",
		Long:    `Create, inspect, update, suspend and cancel hosting accounts.`,
	}

	cmd.AddCommand(newServiceCreateCmd(client))
	cmd.AddCommand(newServiceListCmd(client))
	cmd.AddCommand(newServiceGetCmd(client))
	cmd.AddCommand(newServiceUpdateCmd(client))
	cmd.AddCommand(newServiceSuspendCmd(client))
	cmd.AddCommand(newServiceUnsuspendCmd(client))
	cmd.AddCommand(newServiceCancelCmd(client))
	cmd.AddCommand(newServicePackageCmd(client))
	cmd.AddCommand(newServiceUsageCmd(client))

	return cmd
}

// printService writes svc as JSON or a key/value table depending on --output
func printService(w io.Writer, styler *output.Styler, svc *api.Service) error {
	if outputFormat == "json" {
		jsonStr, err := output.FormatJSON(svc)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Fprintln(w, jsonStr)
		return nil
	}
	fmt.Fprintf(w, "Service ID:    %s\n", svc.ServiceID)
	fmt.Fprintf(w, "Server:        %s\n", svc.ServerID)
	fmt.Fprintf(w, "Status:        %s\n", styler.Status(svc.Status))
	fmt.Fprintf(w, "Domain:        %s\n", svc.Domain)
	fmt.Fprintf(w, "Username:      %s\n", svc.Username)
	fmt.Fprintf(w, "Package:       %s\n", svc.Package)
	fmt.Fprintf(w, "Shell Access:  %t\n", svc.ShellAccess)
	if !svc.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:    %s\n", svc.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
