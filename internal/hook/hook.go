// Package hook loads user-supplied pre/post processing hooks and runs them
// so that a failing hook never takes the pipeline invocation down with it.
package hook

import (
	"fmt"

	"github.com/aliskhannn/thumbnailer/internal/imagefile"
)

const (
	StagePre  = "pre"
	StagePost = "post"
)

// Hook mutates the pending operations of an image handle.
// Hooks are shared by all concurrent invocations.
type Hook interface {
	Apply(h *imagefile.Handle) error
}

// Func adapts a plain function to the Hook interface.
type Func func(h *imagefile.Handle) error

// Apply calls f(h).
func (f Func) Apply(h *imagefile.Handle) error {
	return f(h)
}

// Error reports a hook that returned an error or panicked.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s hook: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invoke runs h against handle. A nil hook does nothing. Failures, panics
// included, come back as *Error for the caller to log.
func Invoke(stage string, h Hook, handle *imagefile.Handle) (err error) {
	if h == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &Error{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if applyErr := h.Apply(handle); applyErr != nil {
		return &Error{Stage: stage, Err: applyErr}
	}

	return nil
}
