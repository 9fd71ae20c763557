package samplesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavyindustries/gatt/mgmt"
	"github.com/wavyindustries/gatt/samples"
	"github.com/wavyindustries/gatt/transfer"
)

// fakeDevice stores samples in their encoded form.
type fakeDevice struct {
	mu        sync.Mutex
	stored    []byte
	total     int
	isSetErr  error
	uploadErr error
	tamper    func(*samples.DeviceSamples)
	dropWrite bool
	uploads   int
	downloads int
	block     chan struct{}
}

func (f *fakeDevice) IsSet(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.isSetErr != nil {
		return false, f.isSetErr
	}
	return f.stored != nil, nil
}

func (f *fakeDevice) IDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		return make([]string, samples.NumPages), nil
	}
	ds, err := samples.Decode(f.stored)
	if err != nil {
		return nil, err
	}
	return ds.IDs(), nil
}

func (f *fakeDevice) SpaceUsed(ctx context.Context) (*mgmt.Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &mgmt.Space{Total: f.total, Used: len(f.stored)}, nil
}

func (f *fakeDevice) Upload(ctx context.Context, ds *samples.DeviceSamples, progress transfer.ProgressFunc) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, err := samples.Encode(ds)
	if err != nil {
		return err
	}
	if !f.dropWrite {
		f.stored = b
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

func (f *fakeDevice) Download(ctx context.Context, progress transfer.ProgressFunc) (*samples.DeviceSamples, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	ds := samples.NewDeviceSamples()
	if f.stored != nil {
		var err error
		if ds, err = samples.Decode(f.stored); err != nil {
			return nil, err
		}
	}
	if f.tamper != nil {
		f.tamper(ds)
	}
	if progress != nil {
		progress(100)
	}
	return ds, nil
}

type staticDefaults struct {
	ds  *samples.DeviceSamples
	err error
}

func (d staticDefaults) Build(ctx context.Context) (*samples.DeviceSamples, error) {
	return d.ds, d.err
}

func testSamples() *samples.DeviceSamples {
	ds := samples.NewDeviceSamples()
	ds.Pages[0] = &samples.SamplePack{Name: samples.ToDeviceID("W-MIXED")}
	ds.Pages[0].Loops[0] = &samples.LoopData{LengthBeats: 4, Events: []samples.DrumEvent{
		{Note: 36, Press: 0, Velocity: 100, Release: 12},
	}}
	ds.Pages[1] = &samples.SamplePack{Name: samples.ToDeviceID("W-OG")}
	return ds
}

func encoded(t *testing.T, ds *samples.DeviceSamples) []byte {
	b, err := samples.Encode(ds)
	require.NoError(t, err)
	return b
}

func TestCheckSupport(t *testing.T) {
	dev := &fakeDevice{total: 4096, stored: encoded(t, testSamples())}
	s := New(dev, nil)

	st, err := s.CheckSupport(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Supported)
	assert.True(t, st.Set)
	assert.Equal(t, 4096, st.StorageTotal)
	assert.Equal(t, "WMIXED  ", st.IDs[0])

	cached, ok := s.Status()
	assert.True(t, ok)
	assert.Equal(t, st, cached)
}

func TestCheckSupportUnsupported(t *testing.T) {
	dev := &fakeDevice{isSetErr: errors.New("not supported")}
	s := New(dev, nil)

	st, err := s.CheckSupport(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Supported)

	_, err = s.Download(context.Background())
	assert.Equal(t, ErrUnsupported, err)
	assert.Equal(t, 0, dev.downloads)
}

func TestDownloadPreconditions(t *testing.T) {
	dev := &fakeDevice{total: 4096}
	s := New(dev, nil)

	_, err := s.Download(context.Background())
	assert.Equal(t, ErrUnsupported, err)

	_, err = s.CheckSupport(context.Background())
	require.NoError(t, err)
	_, err = s.Download(context.Background())
	assert.Equal(t, ErrNotSet, err)
	assert.Equal(t, 0, dev.downloads)
}

func TestDownload(t *testing.T) {
	ds := testSamples()
	dev := &fakeDevice{total: 4096, stored: encoded(t, ds)}
	var phases []Phase
	s := New(dev, nil, WithProgress(func(p Phase, _ int) { phases = append(phases, p) }))

	_, err := s.CheckSupport(context.Background())
	require.NoError(t, err)
	got, err := s.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ds, got)
	assert.Same(t, got, s.Last())
	assert.Equal(t, []Phase{PhaseDownload}, phases)

	s.Invalidate()
	assert.Nil(t, s.Last())
	_, ok := s.Status()
	assert.False(t, ok)
}

func TestUploadVerifies(t *testing.T) {
	dev := &fakeDevice{total: 4096}
	var phases []Phase
	s := New(dev, nil, WithProgress(func(p Phase, _ int) { phases = append(phases, p) }))

	ds := testSamples()
	require.NoError(t, s.Upload(context.Background(), ds))
	assert.Equal(t, 1, dev.uploads)
	assert.Equal(t, 1, dev.downloads)
	assert.Equal(t, []Phase{PhaseUpload, PhaseVerify}, phases)

	st, ok := s.Status()
	assert.True(t, ok)
	assert.True(t, st.Set)
	assert.Equal(t, ds, s.Last())
}

func TestUploadMismatchIsNotRetried(t *testing.T) {
	dev := &fakeDevice{total: 4096, tamper: func(ds *samples.DeviceSamples) {
		ds.Pages[0].Loops[0].Events[0].Velocity = 1
	}}
	s := New(dev, nil)

	err := s.Upload(context.Background(), testSamples())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMismatch))
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.False(t, mismatch.Diff.Pages[0].LoopsSame[0])
	assert.True(t, mismatch.Diff.Pages[1].Identical())

	assert.Equal(t, 1, dev.uploads)
	assert.Equal(t, 1, dev.downloads)
	assert.Nil(t, s.Last())
}

func TestUploadRejectsInvalid(t *testing.T) {
	dev := &fakeDevice{total: 4096}
	s := New(dev, nil)

	ds := testSamples()
	ds.Pages[0].Loops[0].Events[0].Release = 0
	err := s.Upload(context.Background(), ds)
	_, ok := err.(samples.ValidationErrors)
	assert.True(t, ok, "got %v", err)
	assert.Equal(t, 0, dev.uploads)
}

func TestUploadNil(t *testing.T) {
	dev := &fakeDevice{total: 4096}
	s := New(dev, nil)
	err := s.Upload(context.Background(), nil)
	_, ok := err.(samples.ValidationErrors)
	assert.True(t, ok, "got %v", err)
	assert.Equal(t, 0, dev.uploads)
}

func TestUploadChecksStorage(t *testing.T) {
	dev := &fakeDevice{total: 100}
	s := New(dev, nil)
	_, err := s.CheckSupport(context.Background())
	require.NoError(t, err)

	err = s.Upload(context.Background(), testSamples())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceed device storage")
	assert.Equal(t, 0, dev.uploads)
}

func TestBusy(t *testing.T) {
	dev := &fakeDevice{total: 4096, block: make(chan struct{})}
	s := New(dev, nil)

	done := make(chan error, 1)
	go func() { done <- s.Upload(context.Background(), testSamples()) }()

	// Wait until the upload holds the syncer.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.busy
	}, time.Second, time.Millisecond)

	_, err := s.CheckSupport(context.Background())
	assert.Equal(t, ErrBusy, err)
	_, err = s.Initialize(context.Background())
	assert.Equal(t, ErrBusy, err)

	close(dev.block)
	require.NoError(t, <-done)
}

func TestInitializeUploadsDefaults(t *testing.T) {
	dev := &fakeDevice{total: 4096}
	s := New(dev, staticDefaults{ds: testSamples()})

	res, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Supported)
	assert.True(t, res.Uploaded)
	assert.Equal(t, testSamples(), res.Samples)
	assert.Equal(t, 1, dev.uploads)

	// Already set: nothing to do.
	res, err = s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Supported: true}, res)
	assert.Equal(t, 1, dev.uploads)
}

func TestInitializeUnsupported(t *testing.T) {
	dev := &fakeDevice{isSetErr: errors.New("rc 8")}
	s := New(dev, staticDefaults{ds: testSamples()})

	res, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Supported)
	assert.Equal(t, 0, dev.uploads)
}

func TestInitializeFailures(t *testing.T) {
	s := New(&fakeDevice{total: 4096}, staticDefaults{err: errors.New("no packs")})
	_, err := s.Initialize(context.Background())
	assert.EqualError(t, err, "build default samples: no packs")

	dev := &fakeDevice{total: 4096, uploadErr: errors.New("link lost")}
	s = New(dev, staticDefaults{ds: testSamples()})
	_, err = s.Initialize(context.Background())
	assert.EqualError(t, err, "upload samples: link lost")
	assert.Equal(t, 1, dev.uploads)
}

func TestInitializeStillUnset(t *testing.T) {
	// The device accepts the upload and serves it back, but reports
	// nothing stored afterwards.
	dev := &fakeDevice{total: 4096, dropWrite: true}
	ds := testSamples()
	dev.tamper = func(got *samples.DeviceSamples) { *got = *ds }
	dev.stored = nil

	s := New(dev, staticDefaults{ds: ds})
	res, err := s.Initialize(context.Background())
	assert.Equal(t, ErrStillUnset, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, 1, dev.uploads)
}
