package uds

import "errors"

// Client error kinds (spec.md §7), following the teacher root package's
// convention of package-level sentinel errors (errors.go) rather than a
// single catch-all error type.
var (
	ErrGeneric             = errors.New("uds: generic client error")
	ErrTimeout             = errors.New("uds: P2/P2* timeout waiting for response")
	ErrNegativeResponse    = errors.New("uds: server returned a negative response")
	ErrDIDMismatch         = errors.New("uds: data identifier mismatch")
	ErrSIDMismatch         = errors.New("uds: response SID does not match request")
	ErrSubFunctionMismatch = errors.New("uds: response sub-function does not match request")
	ErrTransport           = errors.New("uds: transport error")
	ErrResponseTooShort    = errors.New("uds: response shorter than minimum length")
	ErrBufferSize          = errors.New("uds: payload exceeds send buffer capacity")
	ErrInvalidArgument     = errors.New("uds: invalid argument")
	ErrBusy                = errors.New("uds: client is not idle")
	ErrNoTransport         = errors.New("uds: no transport attached")
)
