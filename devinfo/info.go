package devinfo

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/wavyindustries/gatt"
)

// DeviceInfo holds the device information strings. Missing ones are
// empty.
type DeviceInfo struct {
	Manufacturer     string
	Model            string
	Serial           string
	HardwareRevision string
	FirmwareRevision string
	SoftwareRevision string
}

// Info reads and caches the device information service.
type Info struct {
	l *gatt.Link

	mu     sync.Mutex
	cached *DeviceInfo
}

// NewInfo returns an Info on l.
func NewInfo(l *gatt.Link) *Info {
	return &Info{l: l}
}

// Read returns the device information, reading it on first use.
// Characteristics the device lacks are left empty.
func (i *Info) Read(ctx context.Context) (DeviceInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached != nil {
		return *i.cached, nil
	}

	var info DeviceInfo
	for _, f := range []struct {
		uuid gatt.UUID
		dst  *string
	}{
		{gatt.ManufacturerNameUUID, &info.Manufacturer},
		{gatt.ModelNumberUUID, &info.Model},
		{gatt.SerialNumberUUID, &info.Serial},
		{gatt.HardwareRevisionUUID, &info.HardwareRevision},
		{gatt.FirmwareRevisionUUID, &info.FirmwareRevision},
		{gatt.SoftwareRevisionUUID, &info.SoftwareRevision},
	} {
		b, err := i.l.Channel(gatt.DeviceInfoServiceUUID, f.uuid).Read(ctx)
		switch {
		case err == nil:
			*f.dst = strings.TrimRight(string(b), "\x00")
		case errors.Is(err, gatt.ErrTransportUnavailable):
			return DeviceInfo{}, err
		case errors.Is(err, gatt.ErrChannelUnavailable):
			// not provided by this device
		default:
			return DeviceInfo{}, err
		}
	}
	i.cached = &info
	return info, nil
}

// Reset drops the cached values.
func (i *Info) Reset() {
	i.mu.Lock()
	i.cached = nil
	i.mu.Unlock()
}
