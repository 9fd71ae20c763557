// Package samplesync keeps the samples on a device and on the host in
// agreement. It never assumes device state: every upload is read back and
// compared, and a difference is reported instead of retried.
package samplesync

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt/mgmt"
	"github.com/wavyindustries/gatt/samples"
	"github.com/wavyindustries/gatt/transfer"
)

// Device is the sample storage of a device. *mgmt.SampleManager
// implements it.
type Device interface {
	IsSet(ctx context.Context) (bool, error)
	IDs(ctx context.Context) ([]string, error)
	SpaceUsed(ctx context.Context) (*mgmt.Space, error)
	Upload(ctx context.Context, ds *samples.DeviceSamples, progress transfer.ProgressFunc) error
	Download(ctx context.Context, progress transfer.ProgressFunc) (*samples.DeviceSamples, error)
}

// DefaultsSource builds the samples a fresh device is given.
type DefaultsSource interface {
	Build(ctx context.Context) (*samples.DeviceSamples, error)
}

// Phase names the transfer a progress report belongs to.
type Phase int

const (
	PhaseUpload Phase = iota
	PhaseVerify
	PhaseDownload
)

func (p Phase) String() string {
	switch p {
	case PhaseUpload:
		return "upload"
	case PhaseVerify:
		return "verify"
	case PhaseDownload:
		return "download"
	}
	return "unknown"
}

// ProgressFunc receives transfer progress in percent.
type ProgressFunc func(phase Phase, percent int)

// Status is what the device reported about its samples.
type Status struct {
	Supported    bool
	Set          bool
	IDs          []string
	StorageUsed  int
	StorageTotal int
}

// Result is the outcome of Initialize.
type Result struct {
	Supported bool
	Uploaded  bool
	Samples   *samples.DeviceSamples
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithProgress sets the progress callback.
func WithProgress(f ProgressFunc) Option {
	return func(s *Syncer) { s.progress = f }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Syncer) { s.log = log.WithField("module", "samplesync") }
}

// Syncer runs one sync operation at a time against a Device.
type Syncer struct {
	dev      Device
	defaults DefaultsSource
	log      logrus.FieldLogger
	progress ProgressFunc

	mu     sync.Mutex
	busy   bool
	status *Status
	last   *samples.DeviceSamples
}

// New returns a Syncer for dev. defaults may be nil if Initialize is not
// used.
func New(dev Device, defaults DefaultsSource, opts ...Option) *Syncer {
	s := &Syncer{
		dev:      dev,
		defaults: defaults,
		log:      logrus.StandardLogger().WithField("module", "samplesync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Syncer) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Syncer) report(phase Phase) transfer.ProgressFunc {
	if s.progress == nil {
		return nil
	}
	return func(p int) { s.progress(phase, p) }
}

// Status returns the last status read from the device.
func (s *Syncer) Status() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return Status{}, false
	}
	return *s.status, true
}

// Last returns the samples last read from the device.
func (s *Syncer) Last() *samples.DeviceSamples {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Invalidate forgets everything known about the device.
func (s *Syncer) Invalidate() {
	s.mu.Lock()
	s.status = nil
	s.last = nil
	s.mu.Unlock()
}

// CheckSupport asks the device whether it supports samples and whether
// any are set. A device that does not answer the is-set request is reported as
// unsupported, which is not an error.
func (s *Syncer) CheckSupport(ctx context.Context) (Status, error) {
	if err := s.acquire(); err != nil {
		return Status{}, err
	}
	defer s.release()
	return s.checkSupport(ctx)
}

func (s *Syncer) checkSupport(ctx context.Context) (Status, error) {
	set, err := s.dev.IsSet(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
		s.log.WithError(err).Info("device does not support samples")
		st := Status{}
		s.setStatus(&st)
		return st, nil
	}

	st := Status{Supported: true, Set: set}
	if sp, err := s.dev.SpaceUsed(ctx); err != nil {
		s.log.WithError(err).Warn("reading sample space failed")
	} else {
		st.StorageUsed, st.StorageTotal = sp.Used, sp.Total
	}
	if ids, err := s.dev.IDs(ctx); err != nil {
		s.log.WithError(err).Warn("reading sample ids failed")
	} else {
		st.IDs = ids
	}
	s.log.WithFields(logrus.Fields{
		"set":   st.Set,
		"used":  st.StorageUsed,
		"total": st.StorageTotal,
	}).Info("device supports samples")
	s.setStatus(&st)
	return st, nil
}

func (s *Syncer) setStatus(st *Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Download reads the samples from the device. CheckSupport must have
// found the device supported and set.
func (s *Syncer) Download(ctx context.Context) (*samples.DeviceSamples, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	st, ok := s.Status()
	switch {
	case !ok || !st.Supported:
		return nil, ErrUnsupported
	case !st.Set:
		return nil, ErrNotSet
	}
	ds, err := s.dev.Download(ctx, s.report(PhaseDownload))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = ds
	s.mu.Unlock()
	return ds, nil
}

// Upload validates ds, writes it to the device and reads it back. A
// difference is returned as *MismatchError; the upload is not repeated.
func (s *Syncer) Upload(ctx context.Context, ds *samples.DeviceSamples) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.upload(ctx, ds)
}

func (s *Syncer) upload(ctx context.Context, ds *samples.DeviceSamples) error {
	st, _ := s.Status()
	if err := samples.Validate(ds, st.StorageTotal); err != nil {
		return err
	}
	if err := s.dev.Upload(ctx, ds, s.report(PhaseUpload)); err != nil {
		return errors.WithMessage(err, "upload samples")
	}
	got, err := s.dev.Download(ctx, s.report(PhaseVerify))
	if err != nil {
		return errors.WithMessage(err, "read back samples")
	}
	if diff := samples.Compare(ds, got); !diff.Identical() {
		s.log.WithField("diff", diff.String()).Error("uploaded samples differ from device")
		return &MismatchError{Diff: diff}
	}

	s.mu.Lock()
	if s.status == nil {
		s.status = &Status{Supported: true}
	}
	s.status.Set = true
	s.status.IDs = got.IDs()
	s.last = got
	s.mu.Unlock()
	s.log.Info("samples uploaded and verified")
	return nil
}

// Initialize uploads the default samples to a supported device that has
// none. The device is checked once more afterwards.
func (s *Syncer) Initialize(ctx context.Context) (Result, error) {
	if err := s.acquire(); err != nil {
		return Result{}, err
	}
	defer s.release()

	st, err := s.checkSupport(ctx)
	if err != nil {
		return Result{}, err
	}
	if !st.Supported {
		return Result{}, nil
	}
	if st.Set {
		return Result{Supported: true}, nil
	}
	if s.defaults == nil {
		return Result{Supported: true}, errors.New("samplesync: no default samples configured")
	}

	ds, err := s.defaults.Build(ctx)
	if err != nil {
		return Result{Supported: true}, errors.WithMessage(err, "build default samples")
	}
	s.log.WithField("ids", ds.IDs()).Info("uploading default samples")
	if err := s.upload(ctx, ds); err != nil {
		return Result{Supported: true}, err
	}

	st, err = s.checkSupport(ctx)
	if err != nil {
		return Result{Supported: true, Uploaded: true}, err
	}
	if !st.Supported || !st.Set {
		return Result{Supported: st.Supported, Uploaded: true}, ErrStillUnset
	}
	return Result{Supported: true, Uploaded: true, Samples: s.Last()}, nil
}
