package maintenance

import (
	"context"
	"fmt"

	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// Resume brings the nodes recorded by Prepare back online. Nodes that were
// removed or are already online are left alone. The ledger is deleted after
// a real pass in which nothing failed, so a second Resume finds nothing to
// do.
func (c *Controller) Resume(ctx context.Context, store ledger.Store, probe ProbeOptions) (*Report, error) {
	r := newReport("resume")

	if probe.Timeout != nil && !c.WaitUntilUp(ctx, probe) {
		return r, ErrUnreachable
	}

	l, found, err := ledger.Read(ctx, store, ledger.VariantPrepare)
	if err != nil {
		return r, err
	}
	if l.Empty() {
		c.logger.Info().Str("ledger", store.Location()).Bool("found", found).Msg("nothing to resume")
	}
	// A kill ledger still lists workflows only resurrect can restore.
	if l.FromKill() {
		c.logger.Warn().Str("ledger", store.Location()).Int("workflows", l.Ignored()).
			Msg("ledger was written by kill; resuming its nodes and keeping it for resurrect")
		found = false
	}

	for name := range l.All(ledger.Nodes) {
		if err := c.bringOnline(ctx, r, name); err != nil {
			return r, err
		}
	}

	if err := c.consume(ctx, store, found, r); err != nil {
		return r, err
	}
	return r, r.err()
}

// bringOnline toggles a recorded node back online after checking its live
// state.
func (c *Controller) bringOnline(ctx context.Context, r *Report, name string) error {
	n, err := c.gw.GetNode(ctx, name)
	if err != nil {
		return fmt.Errorf("get node %s: %w", name, err)
	}
	if n == nil {
		c.logger.Warn().Str("node", name).Msg("node no longer exists, skipping")
		r.add(EntityNode, name, Missing, "not found")
		return nil
	}
	if !n.Offline {
		c.skip(r, EntityNode, name, "already online")
		return nil
	}
	_, err = c.apply(ctx, r, EntityNode, name, "bring node online", func(ctx context.Context) (bool, error) {
		return c.gw.ToggleNodeOffline(ctx, name)
	})
	return err
}
