package samplesync

import (
	"github.com/pkg/errors"

	"github.com/wavyindustries/gatt/samples"
)

var (
	// ErrBusy is returned when another sync operation is running.
	ErrBusy = errors.New("samplesync: operation in progress")

	// ErrUnsupported is returned when the device is not known to
	// support samples.
	ErrUnsupported = errors.New("samplesync: device does not support samples")

	// ErrNotSet is returned when the device holds no samples.
	ErrNotSet = errors.New("samplesync: no samples on device")

	// ErrStillUnset is returned by Initialize when the device reports no
	// samples after the defaults were uploaded.
	ErrStillUnset = errors.New("samplesync: samples still not set after upload")

	// ErrMismatch is matched by every MismatchError.
	ErrMismatch = errors.New("samplesync: verification mismatch")
)

// MismatchError is returned when samples read back after an upload
// differ from what was sent.
type MismatchError struct {
	Diff samples.Diff
}

func (e *MismatchError) Error() string {
	return "samplesync: uploaded and downloaded samples differ: " + e.Diff.String()
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }
