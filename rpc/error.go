// Package rpc is the request, response and error model shared by the remote
// signer and wallet connect facades.
//
// Every failure in the dispatch path is an *Error tagged with a Kind. The
// facades translate the Kind into their own wire representation at the edge.
package rpc

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind is the class of a failed request.
type Kind uint8

const (
	// None is the Kind of a nil or foreign error.
	None Kind = iota
	// InputValidation is a malformed key, event or parameter list, rejected
	// before any side effect.
	InputValidation
	// SessionNotFound is an unknown, expired or disconnected session.
	SessionNotFound
	// PermissionDenied is a session that exists but lacks the capability.
	PermissionDenied
	// PrimitiveFailure is a signing, encryption or proof of work failure.
	PrimitiveFailure
	// ProtocolError is an unrecognised method.
	ProtocolError
)

var kindNames = [...]string{
	None:             "none",
	InputValidation:  "input validation",
	SessionNotFound:  "session not found",
	PermissionDenied: "permission denied",
	PrimitiveFailure: "primitive failure",
	ProtocolError:    "protocol error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Error is a classified failure. Err, when set, is the underlying cause and is
// reachable with errors.Is and errors.As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Sentinels for errors.Is, they match any *Error of the same Kind.
var (
	ErrInputValidation  = &Error{Kind: InputValidation}
	ErrSessionNotFound  = &Error{Kind: SessionNotFound}
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrPrimitiveFailure = &Error{Kind: PrimitiveFailure}
	ErrProtocol         = &Error{Kind: ProtocolError}
)

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Msg == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel of the same Kind, a sentinel being an *Error with no
// message and no cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// New creates an error of kind k with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind k, annotating it with msg and a stack trace. An
// err that is already an *Error keeps its own Kind.
func Wrap(k Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: k, Msg: msg, Err: pkgerrors.WithStack(err)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return None
}
