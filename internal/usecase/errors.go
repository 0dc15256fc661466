package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrorNotFound       ErrorCode = "NOT_FOUND"
	ErrorTurnInProgress ErrorCode = "TURN_IN_PROGRESS"
	ErrorRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// upstreamError classifies a vendor failure, singling out throttling.
func upstreamError(reason string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, reason, err)
	}
	return newError(ErrorUpstream, reason, err)
}
