package finder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/emaland/lambdactl/internal/lambda"
)

// Launcher is the slice of the API client the coordinator needs.
type Launcher interface {
	LaunchInstance(ctx context.Context, region, gpuType, sshKey string) (string, error)
}

type ResultKind int

const (
	// Started means exactly one instance was launched.
	Started ResultKind = iota
	// Watched means capacity was found but no launch was requested
	// (no SSH key configured).
	Watched
	// Rejected means the API refused the launch, typically because the
	// capacity was claimed by another client between poll and launch.
	Rejected
	// TransientFailure means the launch request itself failed in transit.
	// It is never retried: a retried launch could provision twice.
	TransientFailure
	// TimedOut means the deadline elapsed with no capacity found. Try
	// again later; nothing is broken.
	TimedOut
)

type Result struct {
	Kind       ResultKind
	InstanceID string
	Region     string
	Reason     string
}

// Coordinator drives the poller and issues at most one launch request per
// positive poll. An empty SSHKey puts it in watch-only mode: it reports
// capacity and never launches.
type Coordinator struct {
	Poller           *Poller
	Gateway          Launcher
	SSHKey           string
	ResumeOnLostRace bool
	Logger           zerolog.Logger
}

// Acquire polls until capacity appears, then launches. Rejected and
// TransientFailure end the run rather than silently re-entering the loop;
// the one exception is a lost capacity race with ResumeOnLostRace set,
// which goes back to polling.
func (c *Coordinator) Acquire(ctx context.Context, q Query) (Result, error) {
	for {
		outcome, err := c.Poller.Wait(ctx, q)
		if err != nil {
			return Result{}, err
		}
		switch outcome.Kind {
		case Fatal:
			return Result{}, fmt.Errorf("polling %s capacity: %w", q.GPUType, outcome.Err)
		case Unavailable:
			return Result{Kind: TimedOut}, nil
		}

		region := outcome.Region.Name
		if c.SSHKey == "" {
			return Result{Kind: Watched, Region: region}, nil
		}

		id, err := c.Gateway.LaunchInstance(ctx, region, q.GPUType, c.SSHKey)
		if err == nil {
			return Result{Kind: Started, InstanceID: id, Region: region}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		var apiErr *lambda.APIError
		if errors.As(err, &apiErr) && apiErr.Fatal() {
			if c.ResumeOnLostRace && lostRace(apiErr) {
				c.Logger.Warn().
					Str("gpu_type", q.GPUType).
					Str("region", region).
					Str("reason", apiErr.Message).
					Msg("capacity race lost, resuming poll")
				continue
			}
			return Result{Kind: Rejected, Region: region, Reason: err.Error()}, nil
		}
		return Result{Kind: TransientFailure, Region: region, Reason: err.Error()}, nil
	}
}

// lostRace reports whether a launch rejection means the capacity vanished
// between the poll and the launch, as opposed to a malformed request.
func lostRace(err *lambda.APIError) bool {
	if err.StatusCode == http.StatusConflict {
		return true
	}
	return strings.Contains(err.Code, "insufficient-capacity")
}
