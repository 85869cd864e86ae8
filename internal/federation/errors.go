package federation

import (
	"errors"
	"fmt"
)

var (
	ErrWrongMode            = errors.New("federation: operation not allowed in current mode")
	ErrFederationTerminated = errors.New("federation: federation terminated")
	ErrDuplicateInterface   = errors.New("federation: interface already registered")
	ErrUnknownFederate      = errors.New("federation: unknown federate")
	ErrUnknownHandle        = errors.New("federation: unknown interface handle")
	ErrInvalidInfo          = errors.New("federation: invalid federate info")
	ErrFederationFull       = errors.New("federation: all expected federates already registered")
)

var codes = []struct {
	code string
	err  error
}{
	{"wrong_mode", ErrWrongMode},
	{"terminated", ErrFederationTerminated},
	{"duplicate", ErrDuplicateInterface},
	{"unknown_federate", ErrUnknownFederate},
	{"unknown_handle", ErrUnknownHandle},
	{"invalid_info", ErrInvalidInfo},
	{"full", ErrFederationFull},
}

// ErrorCode returns a stable code for err so it can cross a process boundary.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorFromCode rebuilds an error from a code and message so errors.Is keeps
// working on the far side of a connection.
func ErrorFromCode(code, msg string) error {
	for _, c := range codes {
		if c.code == code {
			if msg == "" || msg == c.err.Error() {
				return c.err
			}
			return &remoteError{msg: msg, wrapped: c.err}
		}
	}
	return errors.New(msg)
}

type remoteError struct {
	msg     string
	wrapped error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.wrapped }

// StepError records the simulated time at which a time loop failed.
type StepError struct {
	Time Time
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.1f): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
