// Package finder implements the capacity watch loop: poll the API for a GPU
// type at a fixed cadence, then launch exactly one instance when a region
// reports capacity.
//
// Known limitation: the API has no reservation primitive, so capacity seen
// by a poll can be taken by another client before our launch request lands.
// The coordinator surfaces that as a rejected launch instead of pretending
// a local lock could prevent it.
package finder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/emaland/lambdactl/internal/lambda"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Query names the GPU type to watch. Immutable for the life of a run.
type Query struct {
	GPUType string
}

// CapacityLister is the slice of the API client the poller needs.
type CapacityLister interface {
	CapacityForType(ctx context.Context, gpuType string) ([]lambda.RegionCapacity, error)
}

type OutcomeKind int

const (
	// Available means at least one region reported capacity.
	Available OutcomeKind = iota
	// Unavailable means the configured deadline elapsed with no capacity.
	Unavailable
	// Fatal means a poll failed in a way retrying cannot fix.
	Fatal
)

// PollOutcome is the terminal result of one Wait call. Region is set for
// Available, Err for Fatal.
type PollOutcome struct {
	Kind   OutcomeKind
	Region lambda.RegionCapacity
	Err    error
}

// Poller queries capacity at a fixed cadence until a region reports it, a
// fatal error occurs, the deadline elapses, or the context is cancelled.
// The cadence is deliberately fixed rather than backed off: the scarce
// resource is capacity, not the API, and the operator picks an interval
// that fits the rate limits.
type Poller struct {
	Gateway  CapacityLister
	Interval time.Duration
	Deadline time.Duration // zero means poll forever
	Logger   zerolog.Logger
}

// Wait runs poll cycles until a terminal outcome. Transient failures
// (network errors, 5xx, rate limiting, malformed bodies) are logged and
// retried on the next tick; they never terminate the loop unless a deadline
// is set and elapses. The returned error is non-nil only for cancellation.
func (p *Poller) Wait(ctx context.Context, q Query) (PollOutcome, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var expired <-chan time.Time
	if p.Deadline > 0 {
		deadline := time.NewTimer(p.Deadline)
		defer deadline.Stop()
		expired = deadline.C
	}

	for attempt := 1; ; attempt++ {
		regions, err := p.Gateway.CapacityForType(ctx, q.GPUType)
		if ctx.Err() != nil {
			return PollOutcome{}, ctx.Err()
		}
		switch {
		case err == nil:
			if region, ok := FirstAvailable(regions); ok {
				p.Logger.Info().
					Str("gpu_type", q.GPUType).
					Str("region", region.Name).
					Int("attempt", attempt).
					Msg("capacity found")
				return PollOutcome{Kind: Available, Region: region}, nil
			}
			p.Logger.Info().
				Str("gpu_type", q.GPUType).
				Int("attempt", attempt).
				Dur("next_check_in", interval).
				Msg("no capacity")
		case isFatal(err):
			return PollOutcome{Kind: Fatal, Err: err}, nil
		default:
			p.Logger.Warn().
				Err(err).
				Str("gpu_type", q.GPUType).
				Int("attempt", attempt).
				Msg("capacity query failed, will retry")
		}

		tick := time.NewTimer(interval)
		select {
		case <-tick.C:
		case <-expired:
			tick.Stop()
			return PollOutcome{Kind: Unavailable}, nil
		case <-ctx.Done():
			tick.Stop()
			return PollOutcome{}, ctx.Err()
		}
	}
}

// FirstAvailable picks the first region with capacity in response order.
// First-seen wins; regions are never reordered or ranked by count.
func FirstAvailable(regions []lambda.RegionCapacity) (lambda.RegionCapacity, bool) {
	for _, r := range regions {
		if r.Available() {
			return r, true
		}
	}
	return lambda.RegionCapacity{}, false
}

func isFatal(err error) bool {
	var apiErr *lambda.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fatal()
	}
	return errors.Is(err, lambda.ErrUnknownInstanceType)
}
