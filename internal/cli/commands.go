package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/jenkins-maintenance/internal/config"
	"github.com/edvin/jenkins-maintenance/internal/maintenance"
)

const defaultSettle = time.Minute

func maintenanceFileFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "maintenance-file", "m", "", "Ledger location: a file path or s3://bucket/key (required)")
	cmd.MarkFlagRequired("maintenance-file")
}

func safeFlag(cmd *cobra.Command, target *bool, def bool) {
	cmd.Flags().BoolVar(target, "safe", def, "Dry run: log every change instead of making it")
}

func (a *app) prepareCommand() *cobra.Command {
	var file string
	var safe bool
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Take every online node offline and record which ones were changed",
		Args:  cobra.NoArgs,
	}
	maintenanceFileFlag(cmd, &file)
	safeFlag(cmd, &safe, false)
	cmd.RunE = a.run("prepare", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			store, err := s.store(file)
			if err != nil {
				return nil, err
			}
			return s.controller.Prepare(ctx, store)
		})
	return cmd
}

func (a *app) resumeCommand() *cobra.Command {
	var (
		file     string
		safe     bool
		waitMins int
		settle   time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Bring back online the nodes recorded by prepare",
		Long: `Bring back online the nodes recorded by prepare. Nodes that are gone or already
online are skipped. The ledger is deleted once every node is back.

With --wait-until-up, resume first waits for Jenkins to answer, for at most
the given number of minutes (0 waits forever), then waits --settle before
changing anything.`,
		Args: cobra.NoArgs,
	}
	maintenanceFileFlag(cmd, &file)
	safeFlag(cmd, &safe, false)
	cmd.Flags().IntVar(&waitMins, "wait-until-up", 0, "Wait up to N minutes for Jenkins to be reachable (0 = no limit)")
	cmd.Flags().DurationVar(&settle, "settle", defaultSettle, "Pause after Jenkins is reachable, before resuming")
	cmd.Flags().DurationVar(&interval, "probe-interval", 5*time.Second, "Pause between reachability probes")
	cmd.RunE = a.run("resume", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			store, err := s.store(file)
			if err != nil {
				return nil, err
			}
			probe := maintenance.ProbeOptions{Interval: interval, Settle: settle}
			if cmd.Flags().Changed("wait-until-up") {
				if waitMins < 0 {
					return nil, fmt.Errorf("%w: --wait-until-up must not be negative", config.ErrInvalid)
				}
				timeout := time.Duration(waitMins) * time.Minute
				probe.Timeout = &timeout
			}
			return s.controller.Resume(ctx, store, probe)
		})
	return cmd
}

func (a *app) infoCommand() *cobra.Command {
	var (
		infoFile    string
		format      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print every node and workflow",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&infoFile, "info-file", "", "Also write the output to this file")
	cmd.Flags().StringVar(&format, "format", maintenance.FormatJSON, "Output format: json or yaml")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Parallel job fetches while walking folders")
	cmd.RunE = a.run("info", func() runOptions { return runOptions{concurrency: concurrency} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			if format != maintenance.FormatJSON && format != maintenance.FormatYAML {
				return nil, fmt.Errorf("%w: unknown format %q", config.ErrInvalid, format)
			}
			var out *os.File
			if infoFile != "" {
				f, err := os.Create(infoFile)
				if err != nil {
					return nil, fmt.Errorf("create info file: %w", err)
				}
				defer f.Close()
				out = f
			}

			info, infoErr := s.controller.Info(ctx)
			if info == nil {
				return nil, infoErr
			}
			data, err := info.Render(format)
			if err != nil {
				return nil, err
			}
			if _, err := a.stdout.Write(data); err != nil {
				return nil, fmt.Errorf("write info: %w", err)
			}
			if out != nil {
				if _, err := out.Write(data); err != nil {
					return nil, fmt.Errorf("write info file: %w", err)
				}
				s.logger.Info().Str("path", infoFile).Msg("info written")
			}
			s.logger.Info().Int("nodes", len(info.Nodes)).Int("workflows", len(info.WorkFlows)).Msg("collected info")
			return nil, infoErr
		})
	return cmd
}

func (a *app) quietDownCommand() *cobra.Command {
	var safe bool
	cmd := &cobra.Command{
		Use:   "quiet-down",
		Short: "Stop Jenkins from starting new builds",
		Args:  cobra.NoArgs,
	}
	safeFlag(cmd, &safe, false)
	cmd.RunE = a.run("quiet-down", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			return s.controller.QuietDown(ctx)
		})
	return cmd
}

func (a *app) cancelQuietDownCommand() *cobra.Command {
	var safe bool
	cmd := &cobra.Command{
		Use:   "cancel-quiet-down",
		Short: "Let Jenkins start builds again",
		Args:  cobra.NoArgs,
	}
	safeFlag(cmd, &safe, false)
	cmd.RunE = a.run("cancel-quiet-down", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			return s.controller.CancelQuietDown(ctx)
		})
	return cmd
}

func (a *app) checkEmptyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-empty",
		Short: "Fail unless the build queue is empty and every node is idle",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run("check-empty", fixed(runOptions{}),
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			return nil, s.controller.CheckEmpty(ctx)
		})
	return cmd
}

func (a *app) killCommand() *cobra.Command {
	var (
		file     string
		safe     bool
		graceful bool
	)
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Disable everything, cancel the queue, terminate builds and quiet down",
		Long: `Disable every enabled workflow, take every online node offline, cancel every
queued item, terminate every running build and put Jenkins in quiet mode.
Disabled workflows and nodes are recorded for resurrect.

Runs as a dry run unless --safe=false is given.`,
		Args:   cobra.NoArgs,
		Hidden: true,
	}
	maintenanceFileFlag(cmd, &file)
	safeFlag(cmd, &safe, true)
	cmd.Flags().BoolVar(&graceful, "graceful", false, "Abort running builds instead of killing them")
	cmd.RunE = a.run("kill", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			store, err := s.store(file)
			if err != nil {
				return nil, err
			}
			return s.controller.Kill(ctx, store, maintenance.KillOptions{Graceful: graceful})
		})
	return cmd
}

func (a *app) resurrectCommand() *cobra.Command {
	var (
		file string
		safe bool
	)
	cmd := &cobra.Command{
		Use:   "resurrect",
		Short: "Undo kill using its ledger",
		Long: `Enable the workflows and bring back the nodes recorded by kill, then cancel
quiet mode. The ledger is deleted once everything is back.

Runs as a dry run unless --safe=false is given.`,
		Args:   cobra.NoArgs,
		Hidden: true,
	}
	maintenanceFileFlag(cmd, &file)
	safeFlag(cmd, &safe, true)
	cmd.RunE = a.run("resurrect", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			store, err := s.store(file)
			if err != nil {
				return nil, err
			}
			return s.controller.Resurrect(ctx, store)
		})
	return cmd
}

func (a *app) greaterResurrectCommand() *cobra.Command {
	var safe bool
	cmd := &cobra.Command{
		Use:   "greater-resurrect",
		Short: "Enable every workflow and node, ignoring any ledger",
		Long: `Enable every workflow, bring every offline node online and cancel quiet mode.
No ledger is read: workflows and nodes that were disabled before the
maintenance window for unrelated reasons are enabled too. Use it only when
the kill ledger is lost.

Runs as a dry run unless --safe=false is given.`,
		Args:   cobra.NoArgs,
		Hidden: true,
	}
	safeFlag(cmd, &safe, true)
	cmd.RunE = a.run("greater-resurrect", func() runOptions { return runOptions{dryRun: safe} },
		func(ctx context.Context, s *session) (*maintenance.Report, error) {
			return s.controller.GreaterResurrect(ctx)
		})
	return cmd
}
