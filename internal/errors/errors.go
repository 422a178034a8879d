package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// Kind classifies a VaultError.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindKeyMaterial
	KindResolution
	KindCyclicReference
	KindCodec
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindKeyMaterial:
		return "key material"
	case KindResolution:
		return "resolution"
	case KindCyclicReference:
		return "cyclic reference"
	case KindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// Kind sentinels for errors.Is.
var (
	ErrConfiguration   = &VaultError{Kind: KindConfiguration}
	ErrKeyMaterial     = &VaultError{Kind: KindKeyMaterial}
	ErrResolution      = &VaultError{Kind: KindResolution}
	ErrCyclicReference = &VaultError{Kind: KindCyclicReference}
	ErrCodec           = &VaultError{Kind: KindCodec}
)

// VaultError is the single failure category raised by the secure vault core.
// Kind tells callers which part of initialization or resolution failed.
type VaultError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *VaultError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// Is matches any VaultError of the same kind, so the Err* sentinels work with errors.Is.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Configuration reports missing or invalid configuration.
func Configuration(op, msg string, err error) error {
	return &VaultError{Kind: KindConfiguration, Op: op, Message: msg, Err: err}
}

// KeyMaterial reports an unreadable keystore, bad password or absent alias.
func KeyMaterial(op, msg string, err error) error {
	return &VaultError{Kind: KindKeyMaterial, Op: op, Message: msg, Err: err}
}

// Resolution reports a missing placeholder value or a malformed qualified alias.
func Resolution(op, msg string, err error) error {
	return &VaultError{Kind: KindResolution, Op: op, Message: msg, Err: err}
}

// CyclicReference reports a relocation or repository-parent cycle.
func CyclicReference(op, msg string, err error) error {
	return &VaultError{Kind: KindCyclicReference, Op: op, Message: msg, Err: err}
}

// Codec reports a malformed ciphertext record or secrets entry.
func Codec(op, msg string, err error) error {
	return &VaultError{Kind: KindCodec, Op: op, Message: msg, Err: err}
}

// KindOf returns the kind of the first VaultError in err's chain, or 0.
func KindOf(err error) Kind {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	var ve *VaultError
	if errors.As(err, &ve) {
		return UserError{
			Message:    ve.Error(),
			Suggestion: suggestionFor(ve.Kind),
			Err:        err,
		}
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}

func suggestionFor(kind Kind) string {
	switch kind {
	case KindConfiguration:
		return "Check the masterKeyReader and secretRepository sections of your configuration"
	case KindKeyMaterial:
		return "Verify keystoreLocation, privateKeyAlias and the keyStorePassword/privateKeyPassword master keys"
	case KindResolution:
		return "Set the referenced environment variable or pass it with -D name=value"
	case KindCyclicReference:
		return "Remove the loop in master key relocation or repository parent settings"
	case KindCodec:
		return "Re-encrypt the value with 'secvault encrypt-text' or fix the secrets file entry"
	}
	return ""
}
