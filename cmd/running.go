package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/emaland/lambdactl/internal/lambda"
)

func newRunningCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "List active GPU instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRunning(cmd.Context(), client)
		},
	}
}

func listRunning(ctx context.Context, client *lambda.Client) error {
	instances, err := client.ListInstances(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE ID\tSTATUS\tIP ADDRESS\tSSH KEYS")

	for _, inst := range instances {
		ip := inst.IP
		if ip == "" {
			ip = "-"
		}
		keys := "-"
		if len(inst.SSHKeyNames) > 0 {
			keys = strings.Join(inst.SSHKeyNames, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			color.GreenString(inst.ID),
			color.YellowString(inst.Status),
			ip,
			keys,
		)
	}
	w.Flush()
	return nil
}
