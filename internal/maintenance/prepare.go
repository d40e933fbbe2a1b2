package maintenance

import (
	"context"
	"fmt"

	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// Prepare takes every online node offline and records the nodes it toggled,
// so Resume brings back exactly those.
func (c *Controller) Prepare(ctx context.Context, store ledger.Store) (*Report, error) {
	r := newReport("prepare")
	if err := store.Touch(ctx); err != nil {
		return r, fmt.Errorf("create ledger: %w", err)
	}

	l := ledger.New(ledger.VariantPrepare)
	err := c.capture(ctx, store, l, func() error {
		nodes, err := c.gw.ListNodes(ctx)
		if err != nil {
			return fmt.Errorf("list nodes: %w", err)
		}
		if nodes == nil {
			return fmt.Errorf("list nodes: %w", ErrUnavailable)
		}

		for _, n := range nodes {
			if n.Offline {
				// Not ours to bring back.
				c.skip(r, EntityNode, n.Name, "already offline")
				continue
			}
			state, err := c.apply(ctx, r, EntityNode, n.Name, "take node offline", func(ctx context.Context) (bool, error) {
				return c.gw.ToggleNodeOffline(ctx, n.Name)
			})
			// A dry run records nothing and leaves an empty ledger behind,
			// unlike Kill, which records in dry runs too.
			if state != ActionSimulated {
				l.Record(ledger.Nodes, n.Name)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	return r, r.err()
}
