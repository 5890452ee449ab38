package main

import (
	"fmt"

	"jellysync/internal/syncer"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitPartial = 2
)

// exitError carries a process exit code through cobra. A nil err means the
// command already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitForStatus maps a sync status onto the documented exit codes.
func exitForStatus(status syncer.Status) error {
	switch status {
	case syncer.StatusSuccess:
		return nil
	case syncer.StatusPartial:
		return &exitError{code: exitPartial}
	default:
		return &exitError{code: exitFailure}
	}
}
