package scanner

import (
	"errors"
	"fmt"

	"qrprocess-pi/pkg/permission"
	"qrprocess-pi/pkg/qrgen"
)

// Kind tags a scanner Error.
type Kind int

const (
	KindOther Kind = iota
	KindNotAuthorized
	KindDeviceNotFound
	KindDeviceInvalid
	KindInvalidCode
	KindWrapped
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthorized:
		return "notAuthorized"
	case KindDeviceNotFound:
		return "deviceNotFound"
	case KindDeviceInvalid:
		return "deviceInvalid"
	case KindInvalidCode:
		return "invalidCode"
	case KindWrapped:
		return "wrapped"
	default:
		return "other"
	}
}

// Error is every failure the scanner reports to its delegate. Err is set for KindWrapped
// and optionally carries detail for the other kinds.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "scanner: " + e.Kind.String()
	}
	return fmt.Sprintf("scanner: %s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinels by kind, so errors.Is(err, ErrDeviceNotFound) holds for any
// deviceNotFound error regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotAuthorized  = &Error{Kind: KindNotAuthorized}
	ErrDeviceNotFound = &Error{Kind: KindDeviceNotFound}
	ErrDeviceInvalid  = &Error{Kind: KindDeviceInvalid}
	ErrInvalidCode    = &Error{Kind: KindInvalidCode}
	ErrWrapped        = &Error{Kind: KindWrapped}
	ErrOther          = &Error{Kind: KindOther}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Wrap turns err into a scanner Error, keeping the kind of errors that already are one.
// Denied camera access and text the code generator rejects get their own kinds.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, permission.ErrNotAuthorized):
		return newError(KindNotAuthorized, err)
	case errors.Is(err, qrgen.ErrNotASCII):
		return newError(KindInvalidCode, err)
	}
	return &Error{Kind: KindWrapped, Err: err}
}
