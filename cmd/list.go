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

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List GPU instance types with available capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listInstanceTypes(cmd.Context(), client)
		},
	}
}

func listInstanceTypes(ctx context.Context, client *lambda.Client) error {
	offers, err := client.ListInstanceTypes(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE TYPE\tDESCRIPTION\tPRICE\tVCPUS\tMEMORY\tSTORAGE\tREGIONS")

	listed := 0
	for _, name := range lambda.InstanceTypeNames(offers) {
		offer := offers[name]
		if len(offer.RegionsWithCapacity) == 0 {
			continue
		}
		regions := make([]string, 0, len(offer.RegionsWithCapacity))
		for _, r := range offer.RegionsWithCapacity {
			regions = append(regions, fmt.Sprintf("%s (%s)", r.Name, r.Description))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d GiB\t%d GiB\t%s\n",
			color.GreenString(name),
			offer.InstanceType.Description,
			color.YellowString("$%.2f/hr", float64(offer.InstanceType.PriceCentsPerHour)/100),
			offer.InstanceType.Specs.VCPUs,
			offer.InstanceType.Specs.MemoryGiB,
			offer.InstanceType.Specs.StorageGiB,
			color.BlueString(strings.Join(regions, ", ")),
		)
		listed++
	}
	w.Flush()

	if listed == 0 {
		fmt.Println("No instance types with available capacity.")
	}
	return nil
}
