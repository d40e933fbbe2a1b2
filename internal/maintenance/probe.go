package maintenance

import (
	"context"
	"time"
)

const defaultProbeInterval = 5 * time.Second

// ProbeOptions control WaitUntilUp.
type ProbeOptions struct {
	// Timeout bounds the wait. nil means do not wait at all, zero means wait
	// forever.
	Timeout *time.Duration
	// Interval between attempts. Defaults to 5s.
	Interval time.Duration
	// Settle is waited once after Jenkins answers, before anything is
	// changed. Nodes reject API calls for a while after a restart.
	Settle time.Duration
}

// WaitUntilUp polls Jenkins until it answers a node listing or the timeout
// elapses. Errors while polling count as "still down". It returns true right
// away when opts.Timeout is nil.
func (c *Controller) WaitUntilUp(ctx context.Context, opts ProbeOptions) bool {
	if opts.Timeout == nil {
		return true
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	var deadline time.Time
	if *opts.Timeout > 0 {
		deadline = time.Now().Add(*opts.Timeout)
	}

	logger := c.logger.With().Str("component", "probe").Logger()
	logger.Info().Dur("timeout", *opts.Timeout).Msg("waiting for jenkins to come up")

	for attempt := 1; ; attempt++ {
		nodes, err := c.gw.ListNodes(ctx)
		if err == nil && nodes != nil {
			logger.Info().Int("attempt", attempt).Msg("jenkins is up")
			if opts.Settle > 0 {
				logger.Info().Dur("settle", opts.Settle).Msg("waiting for jenkins to settle")
				if !sleep(ctx, opts.Settle) {
					return false
				}
			}
			return true
		}
		logger.Debug().Err(err).Int("attempt", attempt).Msg("jenkins is not answering yet")

		wait := interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				logger.Error().Dur("timeout", *opts.Timeout).Msg("jenkins did not come up in time")
				return false
			}
			wait = min(wait, remaining)
		}
		if !sleep(ctx, wait) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
