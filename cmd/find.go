package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/emaland/lambdactl/internal/finder"
	"github.com/emaland/lambdactl/internal/lambda"
)

func newFindCmd() *cobra.Command {
	var (
		gpuType string
		sshKey  string
		sec     int
		timeout time.Duration
		resume  bool
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Poll for capacity and start an instance the moment it appears",
		Long: `Poll the API for capacity of a GPU type at a fixed interval and launch
one instance as soon as a region reports it. Without --ssh the command only
watches and reports capacity, never starting anything.

Capacity seen by a poll can be claimed by another client before the launch
lands; there is no way to reserve it. A lost race fails the run unless
--resume is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("sec") && cfg.PollIntervalSec > 0 {
				sec = cfg.PollIntervalSec
			}
			resume = resume || cfg.ResumeOnLostRace
			interval := time.Duration(sec) * time.Second
			return findInstance(cmd.Context(), client, gpuType, sshKey, interval, timeout, resume)
		},
	}
	cmd.Flags().StringVar(&gpuType, "gpu", "", "GPU instance type to wait for")
	cmd.Flags().StringVar(&sshKey, "ssh", "", "SSH key name to launch with (omit to watch without starting)")
	cmd.Flags().IntVar(&sec, "sec", 30, "Poll interval in seconds")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 = poll forever)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume polling after losing a capacity race")
	_ = cmd.MarkFlagRequired("gpu")
	return cmd
}

func findInstance(ctx context.Context, client *lambda.Client, gpuType, sshKey string, interval, timeout time.Duration, resume bool) error {
	log.Info().
		Str("gpu_type", gpuType).
		Dur("interval", interval).
		Bool("watch_only", sshKey == "").
		Msg("looking for capacity")

	coord := &finder.Coordinator{
		Poller: &finder.Poller{
			Gateway:  client,
			Interval: interval,
			Deadline: timeout,
			Logger:   log.Logger,
		},
		Gateway:          client,
		SSHKey:           sshKey,
		ResumeOnLostRace: resume,
		Logger:           log.Logger,
	}

	result, err := coord.Acquire(ctx, finder.Query{GPUType: gpuType})
	if err != nil {
		return err
	}

	switch result.Kind {
	case finder.Started:
		fmt.Printf("Instance %s started in region %s\n", result.InstanceID, result.Region)
		return waitForActive(ctx, client, result.InstanceID)
	case finder.Watched:
		fmt.Printf("%s has capacity in region %s\n", gpuType, result.Region)
		return nil
	case finder.TimedOut:
		return fmt.Errorf("no %s capacity found within %s; try again later", gpuType, timeout)
	case finder.Rejected:
		return fmt.Errorf("launch of %s in %s rejected: %s", gpuType, result.Region, result.Reason)
	case finder.TransientFailure:
		return fmt.Errorf("launch of %s in %s failed: %s (not retried: a second launch could provision twice)", gpuType, result.Region, result.Reason)
	default:
		return fmt.Errorf("unexpected result for %s: %v", gpuType, result.Kind)
	}
}
