package cmd

import (
	stdcontext "context"
	"fmt"
	"text/tabwriter"

	"github.com/shawn/vesta-provisioner/internal/cli/api"
	"github.com/shawn/vesta-provisioner/internal/cli/output"
	"github.com/spf13/cobra"
)

func newServersCmd(client api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured Vesta panels",
		RunE: func(cmd *cobra.Command, args []string) error {
			styler := output.NewStyler(noColor)

			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), requestTimeout)
			defer cancel()

			list, err := client.ListServers(ctx)
			if err != nil {
				styler.FprintError(cmd.ErrOrStderr(), fmt.Sprintf("Failed to list servers: %v", err))
				return err
			}

			if outputFormat == "json" {
				jsonStr, err := output.FormatJSON(list)
				if err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tHOST\tPORT\tSSL")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", s.ID, s.Name, s.HostName, s.Port, s.UseSSL)
			}
			w.Flush()
			return nil
		},
	}
}
