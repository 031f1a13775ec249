package transport

import (
	"errors"
	"fmt"
)

// Error codes are negative so that they share a single integer channel with
// firmware status values.
const (
	CodeGeneric = int32(-2)
	CodeNL80211 = int32(-3)
	CodeSPI     = int32(-4)
)

var ErrUnsupported = errors.New("operation not supported by transport")
var ErrInvalidTransport = errors.New("invalid transport")
var ErrNotInitialised = errors.New("transport not initialised")
var ErrShortResponse = errors.New("response shorter than header")
var ErrNilBuffer = errors.New("nil buffer")

type Error struct {
	Code int32
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport error %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transport %s failed (%d): %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code int32, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Code returns the transport error code carried by err, or CodeGeneric for any
// other non-nil error.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeGeneric
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return NewError(CodeGeneric, op, err)
}
