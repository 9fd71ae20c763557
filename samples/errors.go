package samples

import "github.com/pkg/errors"

var (
	// ErrRange is returned when a value does not fit its field.
	ErrRange = errors.New("samples: value out of range")

	// ErrName is returned for a name that cannot be stored.
	ErrName = errors.New("samples: invalid name")

	// ErrTruncatedInput is returned when encoded data ends early.
	ErrTruncatedInput = errors.New("samples: truncated input")

	// ErrCorrupt is returned when encoded data is inconsistent.
	ErrCorrupt = errors.New("samples: corrupt input")
)
