package errors

import (
	"errors"
)

var (
	ErrInvalidBody     = errors.New("invalid body")
	ErrRejected        = errors.New("rejected")
	ErrSessionMismatch = errors.New("session id mismatch")
	ErrUnknown         = errors.New("unknown error")
)

func ParseError(status int) error {
	switch status {
	case 200:
		return nil
	case 400:
		return ErrInvalidBody
	case 403:
		return ErrRejected
	case 409:
		return ErrSessionMismatch
	default:
		return ErrUnknown
	}
}

func Status(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrInvalidBody):
		return 400
	case errors.Is(err, ErrRejected):
		return 403
	case errors.Is(err, ErrSessionMismatch):
		return 409
	default:
		return 500
	}
}
