package gatt

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoDeviceSelected is returned by Connect when device selection was
	// cancelled or nothing matched.
	ErrNoDeviceSelected = errors.New("no device selected")

	// ErrTransportUnavailable is returned when there is no active connection.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrChannelUnavailable is returned when a characteristic cannot be
	// resolved or used.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrStaleChannel is returned when a characteristic handle resolved on
	// an earlier connection is used on the current one.
	ErrStaleChannel = errors.New("stale channel handle")

	ErrNotConnected  = errors.New("not connected")
	ErrBusyLink      = errors.New("link is busy")
	ErrConnectFailed = errors.New("connect failed")
	ErrLinkClosed    = errors.New("link closed")
)

// UnavailableError reports a channel operation that could not run. It
// matches ErrChannelUnavailable as well as its cause.
type UnavailableError struct {
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("channel %s unavailable: %v", e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == ErrChannelUnavailable
}
