package maintenance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// KillOptions tune Kill.
type KillOptions struct {
	// Graceful aborts running builds instead of hard-killing them.
	Graceful bool
}

// Kill brings the whole controller to a halt: it disables every enabled
// workflow, takes every online node offline, empties the build queue,
// terminates running builds and puts Jenkins into quiet mode. Disabled
// workflows and nodes are recorded, in dry runs too, so Resurrect can undo
// exactly those changes. Queue items and builds are gone for good.
func (c *Controller) Kill(ctx context.Context, store ledger.Store, opts KillOptions) (*Report, error) {
	r := newReport("kill")
	if err := store.Touch(ctx); err != nil {
		return r, fmt.Errorf("create ledger: %w", err)
	}

	l := ledger.New(ledger.VariantKill)
	err := c.capture(ctx, store, l, func() error {
		disc, err := c.discoverer.Discover(ctx)
		if err != nil {
			return err
		}
		for _, f := range disc.Failures {
			r.add(EntityWorkflow, f.URL, ActionFailed, f.Err.Error())
		}

		if err := c.disableWorkflows(ctx, r, l, disc.Workflows); err != nil {
			return err
		}
		if err := c.takeNodesOffline(ctx, r, l); err != nil {
			return err
		}
		if err := c.cancelQueue(ctx, r); err != nil {
			return err
		}
		if err := c.terminateBuilds(ctx, r, disc.Workflows, opts.Graceful); err != nil {
			return err
		}
		_, err = c.apply(ctx, r, EntityServer, "jenkins", "quiet down", c.gw.QuietDown)
		return err
	})
	if err != nil {
		return r, err
	}
	return r, r.err()
}

func (c *Controller) disableWorkflows(ctx context.Context, r *Report, l *ledger.Ledger, workflows []jenkins.Workflow) error {
	for _, w := range workflows {
		switch w.Enabled {
		case jenkins.Disabled:
			c.skip(r, EntityWorkflow, w.URL, "already disabled")
			continue
		case jenkins.EnablementUnknown:
			c.skip(r, EntityWorkflow, w.URL, "cannot be disabled")
			continue
		}
		_, err := c.apply(ctx, r, EntityWorkflow, w.URL, "disable workflow", func(ctx context.Context) (bool, error) {
			return c.gw.DisableJob(ctx, w.URL)
		})
		// Recorded whatever the outcome.
		l.Record(ledger.Workflows, w.URL)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) takeNodesOffline(ctx context.Context, r *Report, l *ledger.Ledger) error {
	nodes, err := c.gw.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	if nodes == nil {
		return fmt.Errorf("list nodes: %w", ErrUnavailable)
	}
	for _, n := range nodes {
		if n.Offline {
			c.skip(r, EntityNode, n.Name, "already offline")
			continue
		}
		_, err := c.apply(ctx, r, EntityNode, n.Name, "take node offline", func(ctx context.Context) (bool, error) {
			return c.gw.ToggleNodeOffline(ctx, n.Name)
		})
		l.Record(ledger.Nodes, n.Name)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) cancelQueue(ctx context.Context, r *Report) error {
	q, err := c.gw.GetBuildQueue(ctx)
	if err != nil {
		return fmt.Errorf("get build queue: %w", err)
	}
	if q == nil {
		r.add(EntityQueueItem, "*", ActionFailed, "build queue unavailable")
		return nil
	}
	for _, item := range q.Items {
		_, err := c.apply(ctx, r, EntityQueueItem, strconv.FormatInt(item.ID, 10), "cancel queue item", func(ctx context.Context) (bool, error) {
			return c.gw.CancelQueueItem(ctx, item.ID)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) terminateBuilds(ctx context.Context, r *Report, workflows []jenkins.Workflow, graceful bool) error {
	action, call := "kill build", c.gw.KillBuild
	if graceful {
		action, call = "stop build", c.gw.StopBuild
	}
	for _, w := range workflows {
		for _, b := range w.RunningBuilds() {
			id := fmt.Sprintf("%s%d", w.URL, b.Number)
			_, err := c.apply(ctx, r, EntityBuild, id, action, func(ctx context.Context) (bool, error) {
				return call(ctx, w.URL, b.Number)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
