//go:build !linux && !darwin
// +build !linux,!darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

func newHostDevice() (ble.Device, error) {
	return nil, errors.New("goble: no host device on this platform")
}
