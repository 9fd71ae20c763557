package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt"
)

// conn adapts a ble.Client. The ble client calls do not take a context,
// so ctx is only checked before each call.
type conn struct {
	cl   ble.Client
	mtu  int
	log  logrus.FieldLogger
	svcs map[string]*ble.Service
}

func (c *conn) MTU() int { return c.mtu }

func (c *conn) service(svc gatt.UUID) (*ble.Service, error) {
	if s, ok := c.svcs[svc.String()]; ok {
		return s, nil
	}
	u := ble.UUID(svc.Bytes())
	ss, err := c.cl.DiscoverServices([]ble.UUID{u})
	if err != nil {
		return nil, errors.Wrapf(err, "discover service %s", svc)
	}
	for _, s := range ss {
		if s.UUID.Equal(u) {
			if c.svcs == nil {
				c.svcs = make(map[string]*ble.Service)
			}
			c.svcs[svc.String()] = s
			return s, nil
		}
	}
	return nil, errors.Wrapf(gatt.ErrChannelUnavailable, "service %s not found", svc)
}

func (c *conn) DiscoverCharacteristic(ctx context.Context, svc, char gatt.UUID) (*gatt.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := c.service(svc)
	if err != nil {
		return nil, err
	}
	u := ble.UUID(char.Bytes())
	cs, err := c.cl.DiscoverCharacteristics([]ble.UUID{u}, s)
	if err != nil {
		return nil, errors.Wrapf(err, "discover characteristic %s", char)
	}
	for _, bc := range cs {
		if !bc.UUID.Equal(u) {
			continue
		}
		if bc.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
			// Subscribe needs the CCCD.
			if _, err := c.cl.DiscoverDescriptors(nil, bc); err != nil {
				return nil, errors.Wrapf(err, "discover descriptors of %s", char)
			}
		}
		return gatt.NewCharacteristic(svc, char, gatt.Property(bc.Property), bc), nil
	}
	return nil, errors.Wrapf(gatt.ErrChannelUnavailable, "characteristic %s/%s not found", svc, char)
}

func native(ch *gatt.Characteristic) (*ble.Characteristic, error) {
	bc, ok := ch.Native().(*ble.Characteristic)
	if !ok {
		return nil, errors.Errorf("characteristic %s was not discovered by goble", ch)
	}
	return bc, nil
}

func (c *conn) ReadCharacteristic(ctx context.Context, ch *gatt.Characteristic) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bc, err := native(ch)
	if err != nil {
		return nil, err
	}
	b, err := c.cl.ReadCharacteristic(bc)
	return b, errors.Wrapf(err, "read %s", ch)
}

func (c *conn) WriteCharacteristic(ctx context.Context, ch *gatt.Characteristic, b []byte, noRsp bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bc, err := native(ch)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.cl.WriteCharacteristic(bc, b, noRsp), "write %s", ch)
}

// indicate reports whether ch only supports indications.
func indicate(bc *ble.Characteristic) bool {
	return bc.Property&ble.CharNotify == 0 && bc.Property&ble.CharIndicate != 0
}

func (c *conn) Subscribe(ctx context.Context, ch *gatt.Characteristic, h gatt.NotificationHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bc, err := native(ch)
	if err != nil {
		return err
	}
	err = c.cl.Subscribe(bc, indicate(bc), func(b []byte) { h(b) })
	return errors.Wrapf(err, "subscribe %s", ch)
}

func (c *conn) Unsubscribe(ctx context.Context, ch *gatt.Characteristic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bc, err := native(ch)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.cl.Unsubscribe(bc, indicate(bc)), "unsubscribe %s", ch)
}

func (c *conn) Disconnected() <-chan struct{} { return c.cl.Disconnected() }

func (c *conn) Close() error {
	return errors.Wrap(c.cl.CancelConnection(), "cancel connection")
}
