package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
)

var errNotFetched = errors.New("jenkins refused to return the job")

// FetchFailure is a queued job URL that could not be fetched. Discovery
// carries on without it.
type FetchFailure struct {
	URL string
	Err error
}

// Discovery is the flattened inventory of one discovery pass.
type Discovery struct {
	// Workflows in breadth-first order: siblings keep the order Jenkins
	// returned them in, shallower jobs come before deeper ones. Callers
	// must not depend on the cross-folder order.
	Workflows []jenkins.Workflow
	Failures  []FetchFailure
}

// Discoverer flattens the folder hierarchy into the set of workflows.
// Folders are expanded through a FIFO queue of child URLs rather than by
// recursion; each level of the queue is fetched with up to Concurrency
// requests in flight and processed in queue order.
type Discoverer struct {
	gw          Gateway
	concurrency int
	logger      zerolog.Logger
}

// NewDiscoverer returns a discoverer. A concurrency below 1 means 1.
func NewDiscoverer(gw Gateway, logger zerolog.Logger, concurrency int) *Discoverer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Discoverer{
		gw:          gw,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "discoverer").Logger(),
	}
}

type discovery struct {
	result Discovery
	queued map[string]bool
	seen   map[string]bool
	queue  []string
	logger zerolog.Logger
}

func (d *discovery) take(job jenkins.Job) {
	switch job.Kind {
	case jenkins.KindWorkflow:
		w, _ := job.Workflow()
		if d.seen[w.URL] {
			return
		}
		d.seen[w.URL] = true
		d.result.Workflows = append(d.result.Workflows, w)
	case jenkins.KindFolder:
		f, _ := job.Folder()
		for _, child := range f.Children {
			if d.queued[child] {
				continue
			}
			d.queued[child] = true
			d.queue = append(d.queue, child)
		}
	default:
		d.logger.Info().Str("job", job.URL).Str("class", job.Class).Msg("skipping unrecognized job type")
	}
}

type fetched struct {
	job *jenkins.Job
	err error
}

// Discover returns every workflow reachable from the root view. Only a
// failure of the root listing is returned as an error.
func (d *Discoverer) Discover(ctx context.Context) (*Discovery, error) {
	top, err := d.gw.ListTopLevelJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list top-level jobs: %w", err)
	}
	if top == nil {
		return nil, fmt.Errorf("list top-level jobs: %w", ErrUnavailable)
	}

	state := &discovery{
		queued: make(map[string]bool),
		seen:   make(map[string]bool),
		logger: d.logger,
	}
	for _, job := range top {
		state.take(job)
	}

	for len(state.queue) > 0 {
		level := state.queue
		state.queue = nil

		results := make([]fetched, len(level))
		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for i, u := range level {
			g.Go(func() error {
				job, err := d.gw.GetJobByURL(ctx, u)
				results[i] = fetched{job: job, err: err}
				return nil
			})
		}
		g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i, r := range results {
			switch {
			case r.err != nil:
				state.fail(level[i], r.err)
			case r.job == nil:
				state.fail(level[i], errNotFetched)
			default:
				state.take(*r.job)
			}
		}
	}

	d.logger.Debug().
		Int("workflows", len(state.result.Workflows)).
		Int("failures", len(state.result.Failures)).
		Msg("discovery finished")
	return &state.result, nil
}

func (d *discovery) fail(u string, err error) {
	d.logger.Warn().Err(err).Str("job", u).Msg("could not fetch job, skipping it")
	d.result.Failures = append(d.result.Failures, FetchFailure{URL: u, Err: err})
}
