package queue

import "fmt"

// ValidationError reports a rejected queue operation: an unknown UID, an
// out-of-range removal/move target, or a malformed plan item, attributed
// to the command that was rejected; Unwrap exposes the underlying cause.
// The manager's command handlers do not construct it: they build the
// `{success: false, msg: ...}` reply from the queue error's own message.
type ValidationError struct {
	Op  string // the command that was rejected, e.g. "queue_plan_remove"
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err as a ValidationError attributed to op.
func NewValidationError(op string, err error) *ValidationError {
	return &ValidationError{Op: op, Err: err}
}
