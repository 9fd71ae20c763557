package transfer

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTransferBusy is returned when a transfer is already running.
	ErrTransferBusy = errors.New("transfer: another transfer is in progress")

	// ErrTransferAborted is matched by every AbortError.
	ErrTransferAborted = errors.New("transfer: aborted")

	ErrEmptyPayload = errors.New("transfer: empty payload")
)

// AbortError reports where a transfer stopped and why.
type AbortError struct {
	Direction string
	Offset    int
	Err       error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transfer: %s aborted at offset %d: %v", e.Direction, e.Offset, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

func (e *AbortError) Is(target error) bool { return target == ErrTransferAborted }
