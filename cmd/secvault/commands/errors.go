package commands

import (
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/sysprop"
)

// redactedError carries a user-facing message with every -D property
// value scrubbed. errors.Is and errors.As still see the original chain.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

// userError simplifies err for display and removes property values from
// its message, since -D carries master key passwords.
func userError(err error, props *sysprop.Properties) error {
	if err == nil {
		return nil
	}
	simplified := dserrors.SimplifyError(err)

	names := props.Names()
	values := make([]string, 0, len(names))
	for _, name := range names {
		if value, ok := props.Get(name); ok {
			values = append(values, value)
		}
	}
	return &redactedError{
		msg: logging.Redact(simplified.Error(), values),
		err: simplified,
	}
}
