package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/jenkins-maintenance/internal/config"
	"github.com/edvin/jenkins-maintenance/internal/jenkins"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
	"github.com/edvin/jenkins-maintenance/internal/logging"
	"github.com/edvin/jenkins-maintenance/internal/maintenance"
	"github.com/edvin/jenkins-maintenance/internal/metrics"
	"github.com/edvin/jenkins-maintenance/internal/platform"
)

// session is everything one command needs once configuration is loaded.
type session struct {
	cfg        *config.Config
	logger     zerolog.Logger
	controller *maintenance.Controller
}

// runOptions are the per-command knobs of a session.
type runOptions struct {
	dryRun      bool
	concurrency int
}

func (a *app) open(operation string, opts runOptions) (*session, error) {
	cfg, err := config.Load(a.configPath)

	level := a.logLevel
	if level == "" && cfg != nil {
		level = cfg.LogLevel
	}
	if a.debug {
		level = "debug"
	}
	s := &session{
		logger: logging.NewLogger(a.stderr, level).With().
			Str("run_id", platform.NewRunID()).
			Str("host", platform.Host()).
			Str("operation", operation).
			Logger(),
	}
	if err != nil {
		return s, err
	}

	cfg.Apply(config.Overrides{URL: a.uri, Username: a.username, Token: a.token, LogLevel: level})
	if err := cfg.Validate(); err != nil {
		return s, err
	}
	client, err := jenkins.NewClient(cfg.JenkinsSettings(), s.logger)
	if err != nil {
		return s, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	s.cfg = cfg
	s.controller = maintenance.New(client, s.logger, maintenance.Options{
		DryRun:      opts.dryRun,
		Concurrency: opts.concurrency,
	})
	return s, nil
}

// store opens the ledger at location with the session's S3 settings.
func (s *session) store(location string) (ledger.Store, error) {
	store, err := ledger.OpenStore(location, s.cfg.LedgerS3())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return store, nil
}

type operationFunc func(ctx context.Context, s *session) (*maintenance.Report, error)

// run adapts an operation to a cobra RunE: it opens the session, runs the
// operation, logs the summary and writes metrics.
func (a *app) run(operation string, opts func() runOptions, fn operationFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		start := time.Now()

		s, err := a.open(operation, opts())
		var report *maintenance.Report
		if err == nil {
			report, err = fn(cmd.Context(), s)
		}
		a.finish(s, operation, report, time.Since(start), err)

		if err != nil {
			return &operationError{err: err}
		}
		return nil
	}
}

func (a *app) finish(s *session, operation string, report *maintenance.Report, elapsed time.Duration, err error) {
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Error().Err(err).Int("exit_code", maintenance.ExitCode(err))
	}
	if report != nil {
		ev = ev.
			Int("applied", report.Count(maintenance.ActionApplied)).
			Int("simulated", report.Count(maintenance.ActionSimulated)).
			Int("skipped", report.Count(maintenance.NoActionNeeded)).
			Int("missing", report.Count(maintenance.Missing)).
			Int("failed", report.Failed())
	}
	ev.Dur("elapsed", elapsed).Msg(operation + " finished")

	if a.metricsFile == "" {
		return
	}
	rec := metrics.NewRecorder()
	rec.Observe(operation, report, elapsed, err)
	if werr := rec.WriteTextfile(a.metricsFile); werr != nil {
		s.logger.Warn().Err(werr).Str("path", a.metricsFile).Msg("failed to write metrics")
	}
}

func fixed(opts runOptions) func() runOptions {
	return func() runOptions { return opts }
}
