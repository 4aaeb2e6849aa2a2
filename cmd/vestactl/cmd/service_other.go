package cmd

import (
	stdcontext "context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/shawn/vesta-provisioner/internal/cli/api"
	"github.com/shawn/vesta-provisioner/internal/cli/output"
	"github.com/shawn/vesta-provisioner/internal/vesta"
	"github.com/spf13/cobra"
)

func newServiceListCmd(client api.Client) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List services",
		RunE: func(cmd *cobra.Command, args []string) error {
			styler := output.NewStyler(noColor)

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			services, err := client.ListServices(ctx, status)
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to list services: %v", err))
				return err
			}

			if outputFormat == "json" {
				jsonStr, err := output.FormatJSON(services)
				if err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE ID\tSERVER\tSTATUS\tDOMAIN\tUSERNAME\tPACKAGE")
			for _, s := range services {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ServiceID, s.ServerID, s.Status, s.Domain, s.Username, s.Package)
			}
			w.Flush()

			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list services in this status")
	return cmd
}

func newServiceGetCmd(client api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <service-id>",
		Short: "Get service details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			styler := output.NewStyler(noColor)

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			svc, err := client.GetService(ctx, args[0])
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to get service: %v", err))
				return err
			}
			return printService(cmd.OutOrStdout(), styler, svc)
		},
	}
}

// newServiceActionCmd builds suspend/unsuspend, which share shape
func newServiceActionCmd(use, short, verb string, call func(stdcontext.Context, string) (*api.Service, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <service-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			styler := output.NewStyler(noColor)

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			svc, err := call(ctx, id)
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to %s service: %v", use, err))
				return err
			}
			styler.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Service '%s' %s", id, verb))
			return printService(cmd.OutOrStdout(), styler, svc)
		},
	}
}

func newServiceSuspendCmd(client api.Client) *cobra.Command {
	return newServiceActionCmd("suspend", "Suspend a service", "suspended", client.SuspendService)
}

func newServiceUnsuspendCmd(client api.Client) *cobra.Command {
	return newServiceActionCmd("unsuspend", "Unsuspend a service", "unsuspended", client.UnsuspendService)
}

func newServiceCancelCmd(client api.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "cancel <service-id>",
		Aliases: []string{"delete"},
		Short:   "Cancel a service and delete its panel account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			styler := output.NewStyler(noColor)
			styler.FprintInfo(cmd.OutOrStdout(), fmt.Sprintf("Canceling service '%s'...", id))

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			if err := client.CancelService(ctx, id); err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to cancel service: %v", err))
				return err
			}

			styler.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Service '%s' canceled", id))
			return nil
		},
	}
}

func newServicePackageCmd(client api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "package <service-id> <package>",
		Short: "Move a service to another hosting package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, pkg := args[0], args[1]
			styler := output.NewStyler(noColor)

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			svc, err := client.ChangePackage(ctx, id, pkg)
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to change package: %v", err))
				return err
			}
			styler.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Service '%s' moved to package '%s'", id, pkg))
			return printService(cmd.OutOrStdout(), styler, svc)
		},
	}
}

func newServiceUsageCmd(client api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <service-id>",
		Short: "Show disk, bandwidth and object counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			styler := output.NewStyler(noColor)

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			usage, err := client.ServiceUsage(ctx, args[0])
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to read usage: %v", err))
				return err
			}

			if outputFormat == "json" {
				jsonStr, err := output.FormatJSON(usage)
				if err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tVALUE")
			for _, k := range usageOrder(usage) {
				fmt.Fprintf(w, "%s\t%v\n", k, usage[k])
			}
			w.Flush()
			return nil
		},
	}
}

// usageOrder lists the panel's known counters first, in panel order, then
// any other fields alphabetically
func usageOrder(usage api.Usage) []string {
	keys := make([]string, 0, len(usage))
	known := make(map[string]bool, len(vesta.UsageFields))
	for _, f := range vesta.UsageFields {
		known[f] = true
		if _, ok := usage[f]; ok {
			keys = append(keys, f)
		}
	}
	var rest []string
	for k := range usage {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
