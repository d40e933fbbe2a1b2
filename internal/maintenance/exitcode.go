package maintenance

import (
	"errors"

	"github.com/edvin/jenkins-maintenance/internal/config"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitGeneralError = 1
	ExitUnexpected   = 2
)

var (
	// ErrNotReady is returned by CheckEmpty when work is still queued or
	// running.
	ErrNotReady = errors.New("jenkins is not empty")
	// ErrUnreachable is returned when Jenkins did not come back within the
	// probe window.
	ErrUnreachable = errors.New("jenkins is unreachable")
	// ErrIncomplete is returned when at least one entity could not be
	// changed. Everything else the operation did stays applied.
	ErrIncomplete = errors.New("operation incomplete")
	// ErrUnavailable is returned when Jenkins refused a listing the operation
	// cannot do without.
	ErrUnavailable = errors.New("jenkins refused the request")
)

// ExitCode maps an operation error onto the process exit code. Business
// failures and bad configuration are general errors; anything else is
// unexpected.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalid),
		errors.Is(err, ledger.ErrEmptyFile),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrUnreachable),
		errors.Is(err, ErrIncomplete),
		errors.Is(err, ErrUnavailable):
		return ExitGeneralError
	default:
		return ExitUnexpected
	}
}
