package gatt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavyindustries/gatt"
	"github.com/wavyindustries/gatt/gatttest"
)

var (
	testSvc  = gatt.MustParseUUID("8d53dc1d-1db7-4cd3-868b-8a527460aa84")
	testChar = gatt.MustParseUUID("da2e7828-fbce-4e01-ae9e-261174997c48")

	fastBackoff = gatt.Backoff{Base: time.Millisecond, Factor: 2, Max: 4 * time.Millisecond, Attempts: 5}
)

func newTestLink(t *testing.T, opts ...gatt.Option) (*gatt.Link, *gatttest.Device, *gatttest.Peripheral) {
	t.Helper()
	p := gatttest.NewPeripheral("AA:BB:CC:DD:EE:FF", "WAVY-1", 185)
	p.AddCharacteristic(testSvc, testChar, gatt.CharRead|gatt.CharWrite|gatt.CharWriteNR|gatt.CharNotify, []byte{42})
	dev := gatttest.NewDevice(p)
	l, err := gatt.NewLink(dev, append([]gatt.Option{gatt.WithBackoff(fastBackoff)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Close(ctx)
	})
	return l, dev, p
}

func wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// recorder collects state transitions.
type recorder struct {
	mu     sync.Mutex
	states []gatt.State
}

func (r *recorder) record(s gatt.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) get() []gatt.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gatt.State(nil), r.states...)
}

func TestLinkConnect(t *testing.T) {
	l, _, p := newTestLink(t)
	var rec recorder
	connected := make(chan struct{}, 1)
	l.Handle(
		gatt.StateChanged(rec.record),
		gatt.Connected(func(gatt.Peripheral) { connected <- struct{}{} }),
	)

	require.NoError(t, l.Connect(context.Background()))
	wait(t, connected, "connected")

	assert.Equal(t, gatt.StateConnected, l.State())
	assert.Equal(t, p.ID(), l.Peripheral().ID())
	assert.Equal(t, uint64(1), l.Generation())
	assert.Equal(t, 182, l.MaxPayload())
	assert.Equal(t, []gatt.State{gatt.StateSelectingDevice, gatt.StateConnecting, gatt.StateConnected}, rec.get())

	err := l.Connect(context.Background())
	assert.True(t, errors.Is(err, gatt.ErrBusyLink), "second connect: %v", err)
}

func TestLinkDefaultMTU(t *testing.T) {
	p := gatttest.NewPeripheral("id", "WAVY", 0)
	p.AddCharacteristic(testSvc, testChar, gatt.CharNotify, nil)
	l, err := gatt.NewLink(gatttest.NewDevice(p), gatt.WithDefaultMTU(100))
	require.NoError(t, err)
	defer l.Close(context.Background())

	assert.Equal(t, 97, l.MaxPayload())
	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, 97, l.MaxPayload())
}

func TestLinkSelectionCancelled(t *testing.T) {
	l, dev, p := newTestLink(t)
	dev.Cancel(true)
	cancelled := make(chan struct{}, 1)
	l.Handle(gatt.SelectionCancelled(func() { cancelled <- struct{}{} }))

	err := l.Connect(context.Background())
	assert.Equal(t, gatt.ErrNoDeviceSelected, err)
	wait(t, cancelled, "selection cancelled")
	assert.Equal(t, gatt.StateDisconnected, l.State())
	assert.Equal(t, 0, p.Connects())
}

func TestLinkConnectRetries(t *testing.T) {
	l, _, p := newTestLink(t)
	p.FailConnects(3)

	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, 4, p.Connects())
	assert.Equal(t, gatt.StateConnected, l.State())
}

func TestLinkConnectGivesUp(t *testing.T) {
	l, _, p := newTestLink(t)
	p.FailConnects(100)
	failed := make(chan error, 1)
	l.Handle(gatt.ConnectFailed(func(err error) { failed <- err }))

	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gatt.ErrConnectFailed), "got %v", err)
	assert.Equal(t, fastBackoff.Attempts, p.Connects())
	assert.Equal(t, gatt.StateDisconnected, l.State())
	select {
	case err := <-failed:
		assert.True(t, errors.Is(err, gatt.ErrConnectFailed))
	case <-time.After(time.Second):
		t.Fatal("ConnectFailed not called")
	}
}

func TestLinkConnectionLoss(t *testing.T) {
	l, _, p := newTestLink(t)
	lost := make(chan struct{}, 1)
	back := make(chan struct{}, 1)
	var connects int
	var mu sync.Mutex
	l.Handle(
		gatt.Connected(func(gatt.Peripheral) { mu.Lock(); connects++; mu.Unlock() }),
		gatt.ConnectionLost(func(gatt.Peripheral) { lost <- struct{}{} }),
		gatt.ConnectionReestablished(func(gatt.Peripheral) { back <- struct{}{} }),
	)
	require.NoError(t, l.Connect(context.Background()))

	ch := l.Channel(testSvc, testChar)
	_, err := ch.Read(context.Background())
	require.NoError(t, err)
	first := p.Conn()
	assert.Equal(t, 1, first.Discovers())

	p.FailConnects(2)
	first.Drop()
	wait(t, lost, "connection lost")
	wait(t, back, "connection reestablished")

	assert.Equal(t, gatt.StateConnected, l.State())
	assert.Equal(t, uint64(2), l.Generation())
	mu.Lock()
	assert.Equal(t, 1, connects, "reconnect must not fire Connected")
	mu.Unlock()

	// The handle cache was dropped, so the new connection resolves again.
	second := p.Conn()
	require.NotEqual(t, first, second)
	b, err := ch.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, b)
	assert.Equal(t, 1, second.Discovers())
}

func TestLinkReconnectGivesUp(t *testing.T) {
	l, _, p := newTestLink(t)
	failed := make(chan struct{}, 1)
	down := make(chan struct{}, 1)
	l.Handle(
		gatt.ConnectFailed(func(error) { failed <- struct{}{} }),
		gatt.Disconnected(func() { down <- struct{}{} }),
	)
	require.NoError(t, l.Connect(context.Background()))

	p.FailConnects(100)
	p.Conn().Drop()
	wait(t, failed, "connect failed")
	wait(t, down, "disconnected")
	assert.Equal(t, gatt.StateDisconnected, l.State())
	assert.Nil(t, l.Peripheral())
}

func TestLinkDisconnect(t *testing.T) {
	l, _, _ := newTestLink(t)
	down := make(chan struct{}, 1)
	lost := make(chan struct{}, 1)
	l.Handle(
		gatt.Disconnected(func() { down <- struct{}{} }),
		gatt.ConnectionLost(func(gatt.Peripheral) { lost <- struct{}{} }),
	)
	require.NoError(t, l.Connect(context.Background()))
	require.NoError(t, l.Disconnect(context.Background()))
	wait(t, down, "disconnected")

	assert.Equal(t, gatt.StateDisconnected, l.State())
	select {
	case <-lost:
		t.Error("clean disconnect reported as connection loss")
	default:
	}
	assert.Equal(t, gatt.ErrNotConnected, l.Disconnect(context.Background()))
}

func TestLinkDisconnectDuringReconnect(t *testing.T) {
	slow := gatt.Backoff{Base: 50 * time.Millisecond, Factor: 1, Max: 50 * time.Millisecond, Attempts: 20}
	l, _, p := newTestLink(t, gatt.WithBackoff(slow))
	lost := make(chan struct{}, 1)
	l.Handle(gatt.ConnectionLost(func(gatt.Peripheral) { lost <- struct{}{} }))
	require.NoError(t, l.Connect(context.Background()))

	p.FailConnects(100)
	p.Conn().Drop()
	wait(t, lost, "connection lost")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Disconnect(ctx))
	assert.Equal(t, gatt.StateDisconnected, l.State())
}

func TestLinkQueueSerializes(t *testing.T) {
	l, _, p := newTestLink(t)
	p.SetLatency(2 * time.Millisecond)
	require.NoError(t, l.Connect(context.Background()))
	ch := l.Channel(testSvc, testChar)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := ch.Read(context.Background())
				assert.NoError(t, err)
				return
			}
			assert.NoError(t, ch.WriteWithoutResponse(context.Background(), []byte{byte(i)}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, p.Conn().MaxInflight())
	assert.Len(t, p.Conn().Writes(), 8)
}

func TestLinkQueueOrder(t *testing.T) {
	l, _, p := newTestLink(t)
	p.SetLatency(time.Millisecond)
	require.NoError(t, l.Connect(context.Background()))
	ch := l.Channel(testSvc, testChar)
	_, err := ch.Resolve(context.Background())
	require.NoError(t, err)

	// Writes issued one after another from one goroutine land in order.
	for i := 0; i < 10; i++ {
		require.NoError(t, ch.WriteWithoutResponse(context.Background(), []byte{byte(i)}))
	}
	for i, w := range p.Conn().Writes() {
		assert.Equal(t, []byte{byte(i)}, w.Data)
	}
}

func TestLinkOperationWithoutConnection(t *testing.T) {
	l, _, _ := newTestLink(t)
	ch := l.Channel(testSvc, testChar)

	_, err := ch.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gatt.ErrChannelUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, gatt.ErrTransportUnavailable), "got %v", err)
}

func TestLinkClosed(t *testing.T) {
	l, _, _ := newTestLink(t)
	require.NoError(t, l.Connect(context.Background()))
	require.NoError(t, l.Close(context.Background()))

	_, err := l.Channel(testSvc, testChar).Read(context.Background())
	assert.True(t, errors.Is(err, gatt.ErrLinkClosed), "got %v", err)
}
