package maintenance

import (
	"context"
	"fmt"
	"strings"
)

// QuietDown stops Jenkins from starting new builds.
func (c *Controller) QuietDown(ctx context.Context) (*Report, error) {
	return c.server(ctx, "quiet-down", "quiet down", c.gw.QuietDown)
}

// CancelQuietDown lets Jenkins start builds again.
func (c *Controller) CancelQuietDown(ctx context.Context) (*Report, error) {
	return c.server(ctx, "cancel-quiet-down", "cancel quiet down", c.gw.CancelQuietDown)
}

func (c *Controller) server(ctx context.Context, operation, action string, call func(context.Context) (bool, error)) (*Report, error) {
	r := newReport(operation)
	if _, err := c.apply(ctx, r, EntityServer, "jenkins", action, call); err != nil {
		return r, err
	}
	return r, r.err()
}

// CheckEmpty succeeds when the build queue is empty and every node is idle.
// It changes nothing.
func (c *Controller) CheckEmpty(ctx context.Context) error {
	var problems []string

	q, err := c.gw.GetBuildQueue(ctx)
	if err != nil {
		return fmt.Errorf("get build queue: %w", err)
	}
	switch {
	case q == nil:
		problems = append(problems, "build queue unavailable")
	case len(q.Items) > 0:
		for _, item := range q.Items {
			c.logger.Info().Int64("queue_item", item.ID).Str("task", item.Task.Name).Str("why", item.Why).Msg("item still queued")
		}
		problems = append(problems, fmt.Sprintf("%d items queued", len(q.Items)))
	}

	nodes, err := c.gw.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	if nodes == nil {
		problems = append(problems, "node list unavailable")
	}
	busy := 0
	for _, n := range nodes {
		if !n.Idle {
			c.logger.Info().Str("node", n.Name).Msg("node is not idle")
			busy++
		}
	}
	if busy > 0 {
		problems = append(problems, fmt.Sprintf("%d nodes busy", busy))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrNotReady, strings.Join(problems, ", "))
	}
	c.logger.Info().Int("nodes", len(nodes)).Msg("jenkins is empty")
	return nil
}
