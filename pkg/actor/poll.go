package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInitial = 5 * time.Second
	defaultPollCap     = 30 * time.Second
	defaultPollTimeout = 30 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// terminal statuses of an actor run.
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusTimedOut  = "TIMED-OUT"
	StatusAborted   = "ABORTED"
)

// PollRun polls GetRun until the run reaches a terminal status or the
// context expires. Uses exponential backoff: 5s -> 10s -> 20s -> 30s (capped).
func PollRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*Run, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		run, err := client.GetRun(ctx, runID)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("actor: poll run %s", runID))
		}

		switch run.Status {
		case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("actor: poll run %s timed out", runID))
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

// RunAndFetch starts an actor run, waits for it to end, and returns the
// items of its default dataset. A failed or aborted run is an error; a
// timed-out run may hold partial data, so its items are still fetched.
func RunAndFetch(ctx context.Context, client Client, actorID string, input map[string]any, opts ...PollOption) ([]any, error) {
	run, err := client.StartRun(ctx, actorID, input)
	if err != nil {
		return nil, err
	}

	zap.L().Info("actor run started",
		zap.String("actor_id", actorID),
		zap.String("run_id", run.ID),
	)

	run, err = PollRun(ctx, client, run.ID, opts...)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case StatusFailed, StatusAborted:
		return nil, eris.Errorf("actor: run %s ended with status %s", run.ID, run.Status)
	case StatusTimedOut:
		zap.L().Warn("actor run timed out, fetching partial results",
			zap.String("run_id", run.ID),
		)
	}

	items, err := client.GetDatasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, err
	}

	zap.L().Info("actor run complete",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("items", len(items)),
	)
	return items, nil
}
