package gw2

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey means the remote API rejected the account key.
var ErrInvalidKey = errors.New("invalid api key")

// ErrRemoteUnavailable matches any transport or status failure talking to
// the remote API. Use errors.Is; the concrete error is a *RemoteError.
var ErrRemoteUnavailable = errors.New("remote api unavailable")

// RemoteError is one failed exchange with the remote API. It matches
// ErrRemoteUnavailable and unwraps to the underlying cause, so request
// cancellation stays visible to errors.Is.
type RemoteError struct {
	Endpoint string
	Status   int // 0 when the request never got a response
	Cause    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("get %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("get %s: %v", e.Endpoint, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

func (e *RemoteError) Is(target error) bool { return target == ErrRemoteUnavailable }

// PermissionError lists the access scopes an otherwise valid key lacks.
type PermissionError struct {
	Missing []string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("api key lacks required permissions: %s", strings.Join(e.Missing, ", "))
}
