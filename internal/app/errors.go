package app

import (
	"context"
	"errors"
	"time"

	"github.com/petems/pulsetap/internal/audio"
)

// reported marks an error that has already been logged.
type reported struct{ err error }

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }

// Domain errors are logged by the component that detects them.
func markReported(err error) error {
	if err == nil || audio.KindOf(err) == 0 {
		return err
	}
	return reported{err}
}

// Reported reports whether err needs no further diagnostic: it was logged
// where it happened or the run was interrupted.
func Reported(err error) bool {
	var r reported
	return errors.As(err, &r) || errors.Is(err, context.Canceled)
}

// ExitCode maps a run result to a process status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func microseconds(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}
