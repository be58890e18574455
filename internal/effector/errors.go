package effector

import (
	"errors"
	"fmt"

	"github.com/ofelix-plnu/acct-deprov/internal/dispatch"
)

// ErrNotInTarget marks "entity not found in the target system". Accounts may
// never have existed or were removed out-of-band; the runner treats it as a
// skip, not a failure.
var ErrNotInTarget = errors.New("not found in target system")

// ActionError carries the retryable/terminal classification as data.
type ActionError struct {
	Err      error
	Terminal bool
}

func (e *ActionError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("terminal: %v", e.Err)
	}
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Retryable wraps a transient failure (network, rate limit, service error).
func Retryable(err error) error {
	return &ActionError{Err: err}
}

// Terminal wraps a logically unrecoverable failure (bad input, permanent
// rejection); it goes straight to notification without retry counting.
func Terminal(err error) error {
	return &ActionError{Err: err, Terminal: true}
}

// Classify maps an error to a signal classification. Deadline overruns and
// unclassified errors count as retryable; transient is the safe default.
func Classify(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) && ae.Terminal {
		return dispatch.ClassTerminal
	}
	return dispatch.ClassRetryable
}
