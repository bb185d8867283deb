package ozerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a category of failure. An Error may carry several: an
// arithmetic overflow discovered while updating file-state accounting is
// both Bug and Overflow, for instance.
type Kind string

const (
	IO       Kind = "IO"
	Channel  Kind = "Channel"
	Lock     Kind = "Lock"
	Overflow Kind = "Overflow"
	Missing  Kind = "Missing"
	Invalid  Kind = "Invalid"
	Mismatch Kind = "Mismatch"
	Bug      Kind = "Bug"
	Panic    Kind = "Panic"
)

// Error is the structured error type returned across the ozonedb API
// boundary: bot responders, the Router, and the host façade all return
// *Error rather than bare error values so callers can branch on kind.
type Error struct {
	Kinds []Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	if len(e.Kinds) > 0 {
		b.WriteString(" [")
		for i, k := range e.Kinds {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(string(k))
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind tag, walking the error
// chain via errors.As so a wrapped *Error further up the chain is still
// inspected.
func Is(err error, k Kind) bool {
	var oe *Error
	if !errors.As(err, &oe) {
		return false
	}
	for _, kind := range oe.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// New constructs an Error with the given message and kind tags.
func New(msg string, kinds ...Kind) *Error {
	return &Error{Msg: msg, Kinds: kinds}
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(kinds []Kind, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Kinds: kinds}
}

// Wrap attaches kind tags and a message to an upstream cause, preserving
// it for errors.Unwrap / errors.Is / errors.As.
func Wrap(cause error, msg string, kinds ...Kind) *Error {
	return &Error{Msg: msg, Kinds: kinds, Cause: cause}
}
