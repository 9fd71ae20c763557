// Package goble provides a gatt.Device backed by the go-ble/ble host stack.
package goble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt"
)

const (
	// DefaultNamePrefix is the advertised name prefix of the supported devices.
	DefaultNamePrefix = "WAVY"

	// DefaultScanTimeout bounds a single Select.
	DefaultScanTimeout = 10 * time.Second
)

// An Option configures a Device.
type Option func(*Device)

// WithNamePrefix sets the local name prefix Select looks for.
func WithNamePrefix(p string) Option {
	return func(d *Device) { d.prefix = p }
}

// WithScanTimeout sets how long Select scans before giving up.
func WithScanTimeout(t time.Duration) Option {
	return func(d *Device) { d.scanTimeout = t }
}

// WithMTU sets the ATT MTU requested right after connecting. It defaults
// to gatt.DefaultMTU.
func WithMTU(n int) Option {
	return func(d *Device) { d.mtu = n }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Device) { d.log = l.WithField("module", "goble") }
}

// Device selects and connects to peripherals through a ble.Device.
type Device struct {
	dev         ble.Device
	prefix      string
	scanTimeout time.Duration
	mtu         int
	log         logrus.FieldLogger
}

// NewDevice opens the platform's default HCI device.
func NewDevice(opts ...Option) (*Device, error) {
	hd, err := newHostDevice()
	if err != nil {
		return nil, errors.Wrap(err, "open host device")
	}
	return Wrap(hd, opts...), nil
}

// Wrap builds a Device on top of an already opened ble.Device.
func Wrap(hd ble.Device, opts ...Option) *Device {
	d := &Device{
		dev:         hd,
		prefix:      DefaultNamePrefix,
		scanTimeout: DefaultScanTimeout,
		log:         logrus.StandardLogger().WithField("module", "goble"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Select scans for the first connectable peripheral whose local name
// starts with the configured prefix.
func (d *Device) Select(ctx context.Context) (gatt.Peripheral, error) {
	sctx, cancel := context.WithTimeout(ctx, d.scanTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found *peripheral
	)
	d.log.WithField("prefix", d.prefix).Debug("scanning")
	err := d.dev.Scan(sctx, false, func(a ble.Advertisement) {
		if !a.Connectable() || !strings.HasPrefix(a.LocalName(), d.prefix) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if found == nil {
			found = &peripheral{d: d, addr: a.Addr(), name: a.LocalName()}
			cancel()
		}
	})

	mu.Lock()
	p := found
	mu.Unlock()
	if p != nil {
		d.log.WithFields(logrus.Fields{"name": p.name, "addr": p.ID()}).Info("peripheral found")
		return p, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && sctx.Err() == nil {
		return nil, errors.Wrap(err, "scan")
	}
	return nil, errors.Wrapf(gatt.ErrNoDeviceSelected, "no %q device within %s", d.prefix, d.scanTimeout)
}

// Stop releases the host device.
func (d *Device) Stop() error {
	return d.dev.Stop()
}

type peripheral struct {
	d    *Device
	addr ble.Addr
	name string
}

func (p *peripheral) ID() string   { return p.addr.String() }
func (p *peripheral) Name() string { return p.name }

func (p *peripheral) Connect(ctx context.Context) (gatt.Conn, error) {
	cl, err := p.d.dev.Dial(ctx, p.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", p.addr)
	}
	c := &conn{cl: cl, log: p.d.log.WithField("addr", p.ID())}
	c.mtu = txMTU(cl)
	rx := p.d.mtu
	if rx <= 0 {
		rx = gatt.DefaultMTU
	}
	tx, err := cl.ExchangeMTU(rx)
	if err != nil {
		c.log.WithError(err).WithField("mtu", c.mtu).Warn("mtu exchange failed")
	} else if tx > 0 {
		c.mtu = tx
	}
	return c, nil
}

// txMTU is the MTU the connection reports before any exchange.
func txMTU(cl ble.Client) int {
	if cn := cl.Conn(); cn != nil {
		return cn.TxMTU()
	}
	return 0
}
