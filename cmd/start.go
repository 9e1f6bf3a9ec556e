package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emaland/lambdactl/internal/finder"
	"github.com/emaland/lambdactl/internal/lambda"
)

// Exposed so tests can shrink the post-launch wait.
var (
	activePollInterval = 15 * time.Second
	activeWaitTimeout  = 10 * time.Minute
)

func newStartCmd() *cobra.Command {
	var (
		gpuType string
		sshKey  string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a GPU instance in the first region with capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sshKey == "" {
				sshKey = cfg.SSHKeyName
			}
			if sshKey == "" {
				return errors.New("no SSH key: pass --ssh or set ssh_key_name in the config")
			}
			return startInstance(cmd.Context(), client, gpuType, sshKey)
		},
	}
	cmd.Flags().StringVar(&gpuType, "gpu", "", "GPU instance type to start")
	cmd.Flags().StringVar(&sshKey, "ssh", "", "SSH key name to attach (default from config)")
	_ = cmd.MarkFlagRequired("gpu")
	return cmd
}

func startInstance(ctx context.Context, client *lambda.Client, gpuType, sshKey string) error {
	regions, err := client.CapacityForType(ctx, gpuType)
	if err != nil {
		return err
	}
	region, ok := finder.FirstAvailable(regions)
	if !ok {
		return fmt.Errorf("no capacity for %s in any region", gpuType)
	}

	id, err := client.LaunchInstance(ctx, region.Name, gpuType, sshKey)
	if err != nil {
		return err
	}
	fmt.Printf("Instance %s launched in region %s, waiting for it to become active...\n", id, region.Name)

	return waitForActive(ctx, client, id)
}

// waitForActive polls the instance until it reports active and prints its
// SSH IP. Giving up on the wait is not an error: the instance keeps booting
// either way.
func waitForActive(ctx context.Context, client *lambda.Client, id string) error {
	deadline := time.NewTimer(activeWaitTimeout)
	defer deadline.Stop()

	for {
		tick := time.NewTimer(activePollInterval)
		select {
		case <-tick.C:
		case <-deadline.C:
			tick.Stop()
			fmt.Printf("Instance %s is not active yet; check `lambdactl running` later.\n", id)
			return nil
		case <-ctx.Done():
			tick.Stop()
			return ctx.Err()
		}

		instance, err := client.GetInstance(ctx, id)
		if err != nil {
			var apiErr *lambda.APIError
			if errors.As(err, &apiErr) && apiErr.Fatal() {
				return err
			}
			// Transient; keep waiting.
			continue
		}
		if instance.Status == "active" {
			if instance.IP != "" {
				fmt.Printf("Instance is active. SSH IP: %s\n", instance.IP)
			} else {
				fmt.Println("Instance is active, but no IP address is assigned yet.")
			}
			return nil
		}
	}
}
