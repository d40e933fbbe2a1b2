package maintenance

import (
	"context"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// Resurrect undoes Kill using only its ledger: recorded workflows are
// enabled without looking at their live state, recorded nodes still offline
// are brought back, and quiet mode is cancelled. A workflow disabled by
// someone else during the window stays disabled.
func (c *Controller) Resurrect(ctx context.Context, store ledger.Store) (*Report, error) {
	r := newReport("resurrect")

	l, found, err := ledger.Read(ctx, store, ledger.VariantKill)
	if err != nil {
		return r, err
	}
	if !found {
		c.logger.Info().Str("ledger", store.Location()).Msg("nothing to resume")
		return r, nil
	}

	for u := range l.All(ledger.Workflows) {
		_, err := c.apply(ctx, r, EntityWorkflow, u, "enable workflow", func(ctx context.Context) (bool, error) {
			return c.gw.EnableJob(ctx, u)
		})
		if err != nil {
			return r, err
		}
	}
	for name := range l.All(ledger.Nodes) {
		if err := c.bringOnline(ctx, r, name); err != nil {
			return r, err
		}
	}
	if _, err := c.apply(ctx, r, EntityServer, "jenkins", "cancel quiet down", c.gw.CancelQuietDown); err != nil {
		return r, err
	}

	if err := c.consume(ctx, store, found, r); err != nil {
		return r, err
	}
	return r, r.err()
}

// GreaterResurrect enables every workflow, brings every offline node online
// and cancels quiet mode, ignoring any ledger. It also re-enables workflows
// that were disabled before the maintenance window for unrelated reasons,
// so it is only meant for when the ledger is lost.
func (c *Controller) GreaterResurrect(ctx context.Context) (*Report, error) {
	r := newReport("greater-resurrect")
	c.logger.Warn().Msg("ignoring the ledger: every workflow and node will be enabled")

	disc, err := c.discoverer.Discover(ctx)
	if err != nil {
		return r, err
	}
	for _, f := range disc.Failures {
		r.add(EntityWorkflow, f.URL, ActionFailed, f.Err.Error())
	}
	for _, w := range disc.Workflows {
		_, err := c.apply(ctx, r, EntityWorkflow, w.URL, "enable workflow", func(ctx context.Context) (bool, error) {
			return c.gw.EnableJob(ctx, w.URL)
		})
		if err != nil {
			return r, err
		}
	}

	nodes, err := c.gw.ListNodes(ctx)
	if err != nil {
		return r, err
	}
	if nodes == nil {
		return r, ErrUnavailable
	}
	for _, n := range nodes {
		if err := c.enableNode(ctx, r, n); err != nil {
			return r, err
		}
	}

	if _, err := c.apply(ctx, r, EntityServer, "jenkins", "cancel quiet down", c.gw.CancelQuietDown); err != nil {
		return r, err
	}
	return r, r.err()
}

func (c *Controller) enableNode(ctx context.Context, r *Report, n jenkins.Node) error {
	if !n.Offline {
		c.skip(r, EntityNode, n.Name, "already online")
		return nil
	}
	_, err := c.apply(ctx, r, EntityNode, n.Name, "bring node online", func(ctx context.Context) (bool, error) {
		return c.gw.ToggleNodeOffline(ctx, n.Name)
	})
	return err
}
