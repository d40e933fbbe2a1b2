package maintenance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// Options tune a Controller.
type Options struct {
	// DryRun replaces every state-changing call with a log line.
	DryRun bool
	// Concurrency bounds parallel job fetches during discovery.
	Concurrency int
}

// Controller runs the maintenance operations. Entities are changed one at a
// time, in discovery or ledger order.
type Controller struct {
	gw         Gateway
	dryRun     bool
	discoverer *Discoverer
	logger     zerolog.Logger
}

// New returns a controller acting through gw.
func New(gw Gateway, logger zerolog.Logger, opts Options) *Controller {
	return &Controller{
		gw:         gw,
		dryRun:     opts.DryRun,
		discoverer: NewDiscoverer(gw, logger, opts.Concurrency),
		logger:     logger.With().Str("component", "controller").Bool("dry_run", opts.DryRun).Logger(),
	}
}

// DryRun reports whether state-changing calls are simulated.
func (c *Controller) DryRun() bool { return c.dryRun }

// apply performs one state change, or only logs it in dry-run mode, and adds
// the outcome to r. An error is returned only when the call could not be
// made at all.
func (c *Controller) apply(ctx context.Context, r *Report, kind EntityKind, id, action string, call func(context.Context) (bool, error)) (State, error) {
	if c.dryRun {
		c.logger.Info().Str(string(kind), id).Str("action", action).Msg("dry run, skipping " + action)
		r.add(kind, id, ActionSimulated, action)
		return ActionSimulated, nil
	}

	ok, err := call(ctx)
	if err != nil {
		r.add(kind, id, ActionFailed, err.Error())
		return ActionFailed, fmt.Errorf("%s %s %s: %w", action, kind, id, err)
	}
	if !ok {
		c.logger.Warn().Str(string(kind), id).Str("action", action).Msg(action + " failed")
		r.add(kind, id, ActionFailed, action)
		return ActionFailed, nil
	}
	c.logger.Info().Str(string(kind), id).Str("action", action).Msg(action + " done")
	r.add(kind, id, ActionApplied, action)
	return ActionApplied, nil
}

func (c *Controller) skip(r *Report, kind EntityKind, id, reason string) {
	c.logger.Info().Str(string(kind), id).Msg("skipping, " + reason)
	r.add(kind, id, NoActionNeeded, reason)
}

// capture runs fn and then saves l, whether fn failed or not, so a partial
// run leaves a ledger of what it already changed.
func (c *Controller) capture(ctx context.Context, store ledger.Store, l *ledger.Ledger, fn func() error) error {
	runErr := fn()

	if err := ledger.Write(context.WithoutCancel(ctx), store, l); err != nil {
		if runErr != nil {
			c.logger.Error().Err(runErr).Msg("operation failed before the ledger could be saved")
		}
		return err
	}
	c.logger.Info().
		Str("ledger", store.Location()).
		Int("nodes", l.Len(ledger.Nodes)).
		Msg("ledger saved")
	return runErr
}

// consume deletes a ledger after a restore pass that changed everything it
// had to.
func (c *Controller) consume(ctx context.Context, store ledger.Store, found bool, r *Report) error {
	if !found || c.dryRun || r.Failed() > 0 {
		return nil
	}
	if err := store.Delete(ctx); err != nil {
		return err
	}
	c.logger.Info().Str("ledger", store.Location()).Msg("ledger deleted")
	return nil
}
