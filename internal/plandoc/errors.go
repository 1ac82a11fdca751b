package plandoc

import (
	"errors"
	"fmt"
)

// AuthError means the identity could not be resolved or is not allowed to
// perform the operation. Callers surface it as a blocking login prompt.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return "auth: identity unavailable"
	}
	return "auth: " + e.Reason
}

// RemoteError covers transport failures, non-2xx responses, {ok:false}
// replies and malformed payloads. It is recoverable by falling back to cached
// state.
type RemoteError struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	msg := "remote " + e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ParseError reports persisted structured text that could not be decoded.
// Readers treat it as an absent value.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key == "" {
		return fmt.Sprintf("parse: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}
