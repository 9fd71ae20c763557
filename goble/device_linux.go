package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newHostDevice() (ble.Device, error) {
	return linux.NewDevice()
}
