// Package devinfo reads the standard battery and device information
// services and follows the device state notifications.
package devinfo

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wavyindustries/gatt"
)

// Battery reads the battery level characteristic.
type Battery struct {
	ch *gatt.Channel
}

// NewBattery returns a Battery on l.
func NewBattery(l *gatt.Link) *Battery {
	return &Battery{ch: l.Channel(gatt.BatteryServiceUUID, gatt.BatteryLevelCharUUID)}
}

func level(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, errors.New("devinfo: empty battery level")
	}
	if b[0] > 100 {
		return 100, nil
	}
	return int(b[0]), nil
}

// Level returns the charge in percent.
func (b *Battery) Level(ctx context.Context) (int, error) {
	v, err := b.ch.Read(ctx)
	if err != nil {
		return 0, err
	}
	return level(v)
}

// Watch calls f with every level the device notifies. Stop the
// notifications with Unwatch.
func (b *Battery) Watch(ctx context.Context, f func(int)) (*gatt.Subscription, error) {
	return b.ch.Subscribe(ctx, func(v []byte) {
		if n, err := level(v); err == nil {
			f(n)
		}
	})
}

// Unwatch stops a Watch.
func (b *Battery) Unwatch(ctx context.Context, s *gatt.Subscription) error {
	return b.ch.Unsubscribe(ctx, s)
}
