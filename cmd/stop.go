package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emaland/lambdactl/internal/lambda"
)

func newStopCmd() *cobra.Command {
	var instanceID string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running GPU instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopInstance(cmd.Context(), client, instanceID)
		},
	}
	cmd.Flags().StringVar(&instanceID, "gpu", "", "Instance ID to stop")
	_ = cmd.MarkFlagRequired("gpu")
	return cmd
}

func stopInstance(ctx context.Context, client *lambda.Client, id string) error {
	if err := client.TerminateInstance(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Instance %s stopped\n", id)
	return nil
}
