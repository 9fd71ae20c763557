package goble

import (
	"context"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavyindustries/gatt"
)

type fakeAdv struct {
	ble.Advertisement
	name string
	addr string
	conn bool
}

func (a fakeAdv) LocalName() string { return a.name }
func (a fakeAdv) Addr() ble.Addr    { return ble.NewAddr(a.addr) }
func (a fakeAdv) Connectable() bool { return a.conn }

type fakeHost struct {
	ble.Device
	advs   []fakeAdv
	dialed ble.Addr
	client *fakeClient
}

func (h *fakeHost) Scan(ctx context.Context, allowDup bool, f ble.AdvHandler) error {
	for _, a := range h.advs {
		if ctx.Err() != nil {
			break
		}
		f(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (h *fakeHost) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	h.dialed = a
	return h.client, nil
}

type fakeClient struct {
	ble.Client
	svc     *ble.Service
	written [][]byte
	subs    map[string]bool
	done    chan struct{}
	mtu     int
	rx      int
	txMTU   int
	mtuErr  error
}

type fakeConn struct {
	ble.Conn
	tx int
}

func (c fakeConn) TxMTU() int { return c.tx }

func (c *fakeClient) Conn() ble.Conn { return fakeConn{tx: c.txMTU} }

func (c *fakeClient) ExchangeMTU(rx int) (int, error) {
	c.rx = rx
	if c.mtuErr != nil {
		return 0, c.mtuErr
	}
	return c.mtu, nil
}

func (c *fakeClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	return []*ble.Service{c.svc}, nil
}

func (c *fakeClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	return s.Characteristics, nil
}

func (c *fakeClient) DiscoverDescriptors(filter []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	ch.CCCD = &ble.Descriptor{UUID: ble.UUID16(0x2902)}
	return []*ble.Descriptor{ch.CCCD}, nil
}

func (c *fakeClient) ReadCharacteristic(ch *ble.Characteristic) ([]byte, error) {
	return []byte{42}, nil
}

func (c *fakeClient) WriteCharacteristic(ch *ble.Characteristic, b []byte, noRsp bool) error {
	c.written = append(c.written, b)
	return nil
}

func (c *fakeClient) Subscribe(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.subs[ch.UUID.String()] = ind
	h([]byte{1})
	return nil
}

func (c *fakeClient) Unsubscribe(ch *ble.Characteristic, ind bool) error {
	delete(c.subs, ch.UUID.String())
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} { return c.done }

func (c *fakeClient) CancelConnection() error {
	close(c.done)
	return nil
}

var (
	svcUUID    = gatt.MustParseUUID("8d53dc1d-1db7-4cd3-868b-8a527460aa84")
	notifyUUID = gatt.MustParseUUID("da2e7828-fbce-4e01-ae9e-261174997c48")
	indUUID    = gatt.UUID16(0x2a19)
)

func newClient() *fakeClient {
	return &fakeClient{
		svc: &ble.Service{
			UUID: ble.UUID(svcUUID.Bytes()),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.UUID(notifyUUID.Bytes()), Property: ble.CharWriteNR | ble.CharNotify},
				{UUID: ble.UUID(indUUID.Bytes()), Property: ble.CharRead | ble.CharIndicate},
			},
		},
		subs:  make(map[string]bool),
		done:  make(chan struct{}),
		mtu:   185,
		txMTU: 23,
	}
}

func TestSelect(t *testing.T) {
	h := &fakeHost{advs: []fakeAdv{
		{name: "WAVY MONKEY", addr: "aa:bb:cc:dd:ee:01", conn: false},
		{name: "Speaker", addr: "aa:bb:cc:dd:ee:02", conn: true},
		{name: "WAVY MONKEY", addr: "aa:bb:cc:dd:ee:03", conn: true},
	}}
	d := Wrap(h, WithScanTimeout(time.Second))
	p, err := d.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", p.ID())
	assert.Equal(t, "WAVY MONKEY", p.Name())
}

func TestSelectNothing(t *testing.T) {
	h := &fakeHost{advs: []fakeAdv{{name: "Speaker", addr: "aa:bb:cc:dd:ee:02", conn: true}}}
	d := Wrap(h, WithScanTimeout(20*time.Millisecond))
	_, err := d.Select(context.Background())
	assert.True(t, errors.Is(err, gatt.ErrNoDeviceSelected), "got %v", err)
}

func TestSelectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := Wrap(&fakeHost{}, WithScanTimeout(time.Second))
	_, err := d.Select(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestConn(t *testing.T) {
	cl := newClient()
	h := &fakeHost{
		advs:   []fakeAdv{{name: "WAVY", addr: "aa:bb:cc:dd:ee:03", conn: true}},
		client: cl,
	}
	d := Wrap(h, WithMTU(247))
	p, err := d.Select(context.Background())
	require.NoError(t, err)
	ctx := context.Background()
	c, err := p.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", h.dialed.String())
	assert.Equal(t, 247, cl.rx)
	assert.Equal(t, 185, c.MTU())

	ch, err := c.DiscoverCharacteristic(ctx, svcUUID, notifyUUID)
	require.NoError(t, err)
	assert.Equal(t, gatt.CharWriteNR|gatt.CharNotify, ch.Properties())

	require.NoError(t, c.WriteCharacteristic(ctx, ch, []byte{1, 2}, true))
	assert.Equal(t, [][]byte{{1, 2}}, cl.written)

	var got []byte
	require.NoError(t, c.Subscribe(ctx, ch, func(b []byte) { got = append(got, b...) }))
	assert.Equal(t, []byte{1}, got)
	assert.Equal(t, false, cl.subs[ble.UUID(notifyUUID.Bytes()).String()])

	bat, err := c.DiscoverCharacteristic(ctx, svcUUID, indUUID)
	require.NoError(t, err)
	require.NoError(t, c.Subscribe(ctx, bat, func([]byte) {}))
	assert.Equal(t, true, cl.subs[ble.UUID(indUUID.Bytes()).String()])
	b, err := c.ReadCharacteristic(ctx, bat)
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, b)

	require.NoError(t, c.Unsubscribe(ctx, ch))
	assert.Len(t, cl.subs, 1)

	_, err = c.DiscoverCharacteristic(ctx, svcUUID, gatt.UUID16(0x2a00))
	assert.True(t, errors.Is(err, gatt.ErrChannelUnavailable))

	require.NoError(t, c.Close())
	select {
	case <-c.Disconnected():
	default:
		t.Fatal("not disconnected after Close")
	}
}

func connect(t *testing.T, cl *fakeClient, opts ...Option) gatt.Conn {
	h := &fakeHost{
		advs:   []fakeAdv{{name: "WAVY", addr: "aa:bb:cc:dd:ee:03", conn: true}},
		client: cl,
	}
	p, err := Wrap(h, append([]Option{WithScanTimeout(time.Second)}, opts...)...).Select(context.Background())
	require.NoError(t, err)
	c, err := p.Connect(context.Background())
	require.NoError(t, err)
	return c
}

func TestConnDefaultMTU(t *testing.T) {
	cl := newClient()
	c := connect(t, cl)
	assert.Equal(t, gatt.DefaultMTU, cl.rx)
	assert.Equal(t, 185, c.MTU())
}

func TestConnMTUExchangeFails(t *testing.T) {
	cl := newClient()
	cl.mtuErr = errors.New("not supported")
	c := connect(t, cl)
	assert.Equal(t, 23, c.MTU())
}
