// Package session wires a Link, the SMP client and the device managers
// into the operations an application uses.
package session

import (
	"context"
	"time"

	"github.com/blang/semver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt"
	"github.com/wavyindustries/gatt/devinfo"
	"github.com/wavyindustries/gatt/mgmt"
	"github.com/wavyindustries/gatt/samples"
	"github.com/wavyindustries/gatt/samplesync"
	"github.com/wavyindustries/gatt/smp"
	"github.com/wavyindustries/gatt/transfer"
)

// Session is one application's view of a device.
type Session struct {
	log          logrus.FieldLogger
	linkOpts     []gatt.Option
	transferOpts []transfer.Option
	timeout      time.Duration
	progress     samplesync.ProgressFunc
	defaults     samplesync.DefaultsSource
	reg          prometheus.Registerer

	link    *gatt.Link
	client  *smp.Client
	samples *mgmt.SampleManager
	images  *mgmt.ImageManager
	basic   *mgmt.BasicManager
	syncer  *samplesync.Syncer
	battery *devinfo.Battery
	info    *devinfo.Info
	state   *devinfo.State
}

// New builds a Session on dev. Nothing is connected until Connect.
func New(dev gatt.Device, opts ...Option) (*Session, error) {
	s := &Session{
		log:     logrus.StandardLogger(),
		timeout: smp.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	l, err := gatt.NewLink(dev, append([]gatt.Option{gatt.WithLogger(s.log)}, s.linkOpts...)...)
	if err != nil {
		return nil, err
	}
	s.link = l
	s.client = smp.NewClient(l.Channel(gatt.SMPServiceUUID, gatt.SMPCharUUID),
		smp.WithLogger(s.log),
		smp.WithTimeout(s.timeout),
		smp.WithMetrics(smp.NewMetrics(s.reg)),
	)
	mopts := []mgmt.Option{mgmt.WithLogger(s.log), mgmt.WithTransferOptions(s.transferOpts...)}
	s.samples = mgmt.NewSampleManager(s.client, mopts...)
	s.images = mgmt.NewImageManager(s.client, mopts...)
	s.basic = mgmt.NewBasicManager(s.client)
	s.syncer = samplesync.New(s.samples, s.defaults,
		samplesync.WithLogger(s.log),
		samplesync.WithProgress(s.progress),
	)
	s.battery = devinfo.NewBattery(l)
	s.info = devinfo.NewInfo(l)
	s.state = devinfo.NewState(l, s.log)

	l.Handle(
		gatt.ConnectionLost(func(gatt.Peripheral) { s.drop(smp.ErrReset) }),
		gatt.Disconnected(func() { s.drop(smp.ErrReset) }),
	)
	return s, nil
}

// drop forgets everything tied to the connection that went away.
func (s *Session) drop(err error) {
	s.log.WithField("module", "session").Debug("connection gone, resetting state")
	s.client.Reset(err)
	s.samples.Reset()
	s.images.Reset()
	s.syncer.Invalidate()
	s.info.Reset()
	s.state.Reset()
}

// Link returns the underlying Link, for registering event handlers.
func (s *Session) Link() *gatt.Link { return s.link }

// Client returns the SMP client.
func (s *Session) Client() *smp.Client { return s.client }

// Connect selects a device and connects to it.
func (s *Session) Connect(ctx context.Context) error { return s.link.Connect(ctx) }

// Disconnect closes the connection.
func (s *Session) Disconnect(ctx context.Context) error { return s.link.Disconnect(ctx) }

// Close disconnects and releases the Link.
func (s *Session) Close(ctx context.Context) error {
	s.client.Close(ctx)
	return s.link.Close(ctx)
}

// Poll checks that the device answers.
func (s *Session) Poll(ctx context.Context) error { return s.basic.Poll(ctx) }

// CheckSupport reports whether the device stores samples and whether any
// are set.
func (s *Session) CheckSupport(ctx context.Context) (samplesync.Status, error) {
	return s.syncer.CheckSupport(ctx)
}

// Download reads the device samples.
func (s *Session) Download(ctx context.Context) (*samples.DeviceSamples, error) {
	return s.syncer.Download(ctx)
}

// Upload writes ds to the device and verifies it.
func (s *Session) Upload(ctx context.Context, ds *samples.DeviceSamples) error {
	return s.syncer.Upload(ctx, ds)
}

// Initialize gives a device without samples the default packs.
func (s *Session) Initialize(ctx context.Context) (samplesync.Result, error) {
	return s.syncer.Initialize(ctx)
}

// SampleMode returns the active sample bank.
func (s *Session) SampleMode(ctx context.Context) (mgmt.Mode, error) { return s.samples.Mode(ctx) }

// SetSampleMode switches the sample bank.
func (s *Session) SetSampleMode(ctx context.Context, m mgmt.Mode) error {
	return s.samples.SetMode(ctx, m)
}

// FirmwareVersion returns the running firmware version.
func (s *Session) FirmwareVersion(ctx context.Context) (semver.Version, error) {
	return s.images.Version(ctx)
}

// FirmwareState lists the firmware slots.
func (s *Session) FirmwareState(ctx context.Context) (*mgmt.ImageState, error) {
	return s.images.State(ctx)
}

// UploadFirmware sends a firmware image.
func (s *Session) UploadFirmware(ctx context.Context, image []byte, progress transfer.ProgressFunc) error {
	return s.images.Upload(ctx, image, progress)
}

// BatteryLevel returns the charge in percent.
func (s *Session) BatteryLevel(ctx context.Context) (int, error) { return s.battery.Level(ctx) }

// WatchBattery calls f with every battery level the device notifies.
func (s *Session) WatchBattery(ctx context.Context, f func(int)) (*gatt.Subscription, error) {
	return s.battery.Watch(ctx, f)
}

// DeviceState returns the last notified device state.
func (s *Session) DeviceState() devinfo.Snapshot { return s.state.Snapshot() }

// WatchDeviceState calls f with the device state after every change the
// device notifies.
func (s *Session) WatchDeviceState(ctx context.Context, f func(devinfo.Snapshot)) (*gatt.Subscription, error) {
	return s.state.Watch(ctx, f)
}

// DeviceInfo returns the device information strings.
func (s *Session) DeviceInfo(ctx context.Context) (devinfo.DeviceInfo, error) {
	return s.info.Read(ctx)
}
