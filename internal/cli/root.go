// Package cli binds the maintenance operations to the jenkins-maintenance
// command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edvin/jenkins-maintenance/internal/maintenance"
)

// app holds the flag values shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	debug       bool
	metricsFile string

	uri      string
	username string
	token    string
}

// operationError marks an error returned by an operation, as opposed to a
// command-line mistake caught by cobra.
type operationError struct {
	err error
}

func (e *operationError) Error() string { return e.err.Error() }
func (e *operationError) Unwrap() error { return e.err }

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return maintenance.ExitOK
	}
	var opErr *operationError
	if errors.As(err, &opErr) {
		return maintenance.ExitCode(opErr.err)
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.CommandPath())
	return maintenance.ExitGeneralError
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "jenkins-maintenance",
		Short: "Quiesce a Jenkins controller for maintenance and restore it afterwards",
		Long: `jenkins-maintenance takes Jenkins nodes offline (prepare) and brings back exactly
the nodes it changed (resume), using a ledger file written by prepare.

Connection settings come from a YAML file (--config), then the environment
(JENKINS_URL, JENKINS_USERNAME, JENKINS_TOKEN), then the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&a.logLevel, "minimum-log-level", "", "Minimum log level (trace, debug, info, warn, error)")
	pf.BoolVar(&a.debug, "debug", false, "Log at debug level")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	pf.StringVar(&a.uri, "uri", "", "Jenkins URL (env JENKINS_URL)")
	pf.StringVarP(&a.username, "username", "u", "", "Jenkins user (env JENKINS_USERNAME)")
	pf.StringVarP(&a.token, "token", "t", "", "Jenkins API token (env JENKINS_TOKEN)")
	pf.MarkHidden("debug")

	root.AddCommand(
		a.prepareCommand(),
		a.resumeCommand(),
		a.infoCommand(),
		a.quietDownCommand(),
		a.cancelQuietDownCommand(),
		a.checkEmptyCommand(),
		a.killCommand(),
		a.resurrectCommand(),
		a.greaterResurrectCommand(),
	)
	return root
}
