package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavyindustries/gatt"
	"github.com/wavyindustries/gatt/devinfo"
	"github.com/wavyindustries/gatt/gatttest"
	"github.com/wavyindustries/gatt/mgmt"
	"github.com/wavyindustries/gatt/mgmt/mgmttest"
	"github.com/wavyindustries/gatt/samples"
	"github.com/wavyindustries/gatt/samplesync"
	"github.com/wavyindustries/gatt/session"
	"github.com/wavyindustries/gatt/smp"
)

type defaults struct{}

func (defaults) Build(ctx context.Context) (*samples.DeviceSamples, error) {
	ds := samples.NewDeviceSamples()
	ds.Pages[0] = &samples.SamplePack{Name: samples.ToDeviceID("W-MIXED")}
	ds.Pages[0].Loops[0] = &samples.LoopData{LengthBeats: 2, Events: []samples.DrumEvent{
		{Note: 36, Press: 0, Velocity: 127, Release: 6},
		{Note: 42, Press: 24, Velocity: 64, Release: 30},
	}}
	ds.Pages[1] = &samples.SamplePack{Name: samples.ToDeviceID("W-OG")}
	return ds, nil
}

func newSession(t *testing.T, opts ...session.Option) (*session.Session, *gatttest.Peripheral, *mgmttest.Device) {
	p := gatttest.NewPeripheral("AA:BB", "WAVY MONKEY", 100)
	p.AddCharacteristic(gatt.BatteryServiceUUID, gatt.BatteryLevelCharUUID, gatt.CharRead|gatt.CharNotify, []byte{64})
	p.AddCharacteristic(gatt.DeviceInfoServiceUUID, gatt.ModelNumberUUID, gatt.CharRead, []byte("MONKEY"))
	p.AddCharacteristic(gatt.StateServiceUUID, gatt.StateCharUUID, gatt.CharNotify, nil)
	d := mgmttest.New(p)
	t.Cleanup(d.Close)

	opts = append([]session.Option{
		session.WithLinkOptions(gatt.WithBackoff(gatt.Backoff{Base: time.Millisecond, Factor: 2, Max: 4 * time.Millisecond, Attempts: 5})),
		session.WithTimeout(2 * time.Second),
		session.WithDefaults(defaults{}),
	}, opts...)
	s, err := session.New(gatttest.NewDevice(p), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	require.NoError(t, s.Connect(context.Background()))
	return s, p, d
}

func TestInitializeAndDownload(t *testing.T) {
	var phases []samplesync.Phase
	s, _, d := newSession(t, session.WithProgress(func(p samplesync.Phase, pct int) {
		if pct == 100 {
			phases = append(phases, p)
		}
	}))
	ctx := context.Background()

	st, err := s.CheckSupport(ctx)
	require.NoError(t, err)
	assert.True(t, st.Supported)
	assert.False(t, st.Set)

	res, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, 1, d.Uploads())
	want, _ := defaults{}.Build(ctx)
	assert.Equal(t, want, res.Samples)

	got, err := s.Download(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []samplesync.Phase{samplesync.PhaseUpload, samplesync.PhaseVerify, samplesync.PhaseDownload}, phases)
}

func TestUploadMismatch(t *testing.T) {
	s, _, d := newSession(t)
	d.Tamper(func(b []byte) []byte {
		b[len(b)-1] ^= 0x01
		return b
	})
	ds, _ := defaults{}.Build(context.Background())

	err := s.Upload(context.Background(), ds)
	assert.True(t, errors.Is(err, samplesync.ErrMismatch), "got %v", err)
	assert.Equal(t, 1, d.Uploads())
}

func TestDeviceQueries(t *testing.T) {
	s, _, _ := newSession(t)
	ctx := context.Background()

	v, err := s.FirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())

	n, err := s.BatteryLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 64, n)

	info, err := s.DeviceInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MONKEY", info.Model)
	assert.Empty(t, info.Serial)

	require.NoError(t, s.SetSampleMode(ctx, mgmt.ModePAT))
	m, err := s.SampleMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, mgmt.ModePAT, m)
	require.NoError(t, s.Poll(ctx))
}

func TestConnectionLossResetsState(t *testing.T) {
	s, p, d := newSession(t)
	ctx := context.Background()

	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	back := make(chan struct{}, 1)
	s.Link().Handle(gatt.ConnectionReestablished(func(gatt.Peripheral) { back <- struct{}{} }))

	// A request the device never answers is released by the loss.
	d.Server().Handle(mgmt.GroupBasic, mgmt.CmdBasicPoll, func(smp.Op, []byte) interface{} { return nil })
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	require.Eventually(t, func() bool {
		return d.Server().Count(mgmt.GroupBasic, mgmt.CmdBasicPoll) == 1
	}, time.Second, time.Millisecond)

	p.Conn().Drop()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, smp.ErrReset), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released")
	}
	select {
	case <-back:
	case <-time.After(2 * time.Second):
		t.Fatal("not reestablished")
	}

	// Nothing known about the device survives the loss.
	_, err = s.Download(ctx)
	assert.Equal(t, samplesync.ErrUnsupported, err)

	st, err := s.CheckSupport(ctx)
	require.NoError(t, err)
	assert.True(t, st.Set)
	_, err = s.Download(ctx)
	assert.NoError(t, err)
}

func TestDeviceState(t *testing.T) {
	s, p, _ := newSession(t)
	ctx := context.Background()

	snaps := make(chan devinfo.Snapshot, 1)
	_, err := s.WatchDeviceState(ctx, func(st devinfo.Snapshot) { snaps <- st })
	require.NoError(t, err)
	require.True(t, p.Conn().Notify(gatt.StateServiceUUID, gatt.StateCharUUID, []byte{0x07, 0x00, 0x64, 0x00}))
	select {
	case st := <-snaps:
		assert.Equal(t, 100, st.BPM)
	case <-time.After(time.Second):
		t.Fatal("no state notification")
	}
	assert.True(t, s.DeviceState().Known(devinfo.CmdBPM))

	back := make(chan struct{}, 1)
	s.Link().Handle(gatt.ConnectionReestablished(func(gatt.Peripheral) { back <- struct{}{} }))
	p.Conn().Drop()
	select {
	case <-back:
	case <-time.After(2 * time.Second):
		t.Fatal("not reestablished")
	}
	assert.False(t, s.DeviceState().Known(devinfo.CmdBPM))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _, _ := newSession(t, session.WithRegisterer(reg))
	require.NoError(t, s.Poll(context.Background()))

	n, err := testutil.GatherAndCount(reg, "wavy_smp_transactions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
