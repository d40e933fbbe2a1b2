package platform

import (
	"os"

	"github.com/google/uuid"
)

// NewRunID returns an identifier tying together the log lines and metrics of
// one invocation.
func NewRunID() string {
	return uuid.New().String()
}

// Host returns the machine name for log context, or "unknown".
func Host() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
