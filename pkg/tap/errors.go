package tap

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved is raised when a Deferred is read before it was resolved.
	ErrUnresolved = errors.New("unresolved value queried")
	// ErrAborted is returned by Session.Wait after an internal error stopped
	// the session.
	ErrAborted = errors.New("session aborted")
	// ErrUnknownSetting is returned by Session.Set for unrecognised keys.
	ErrUnknownSetting = errors.New("unknown setting")
	// ErrInvalidSetting is returned by Session.Set for values of the wrong type
	// or range.
	ErrInvalidSetting = errors.New("invalid setting value")
	// ErrNoPage is raised by page operations issued before any Open.
	ErrNoPage = errors.New("no page open, call Open first")
)

// SettingError describes a rejected Session.Set call.
type SettingError struct {
	Key   string
	Value any
	Err   error
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("set %q: %v (got %T)", e.Key, e.Err, e.Value)
}

func (e *SettingError) Unwrap() error {
	return e.Err
}

// internalError wraps a value recovered from a panicking job.
type internalError struct {
	label string
	value any
}

func (e *internalError) Error() string {
	return fmt.Sprintf("%s: %v", e.label, e.value)
}

func (e *internalError) Unwrap() error {
	if err, ok := e.value.(error); ok {
		return err
	}
	return nil
}
