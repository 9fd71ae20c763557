// Package gatttest provides an in-memory gatt backend for tests.
package gatttest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/wavyindustries/gatt"
)

var (
	ErrClosed   = errors.New("gatttest: connection closed")
	ErrNotFound = errors.New("gatttest: characteristic not found")
	ErrRefused  = errors.New("gatttest: connection refused")
)

// Device is a gatt.Device that always selects the same peripheral.
type Device struct {
	mu      sync.Mutex
	p       *Peripheral
	cancel  bool
	selects int
}

// NewDevice returns a Device that selects p.
func NewDevice(p *Peripheral) *Device {
	return &Device{p: p}
}

// Cancel makes subsequent selections behave as if the user dismissed
// the chooser.
func (d *Device) Cancel(b bool) {
	d.mu.Lock()
	d.cancel = b
	d.mu.Unlock()
}

// Selects returns how many times Select was called.
func (d *Device) Selects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selects
}

func (d *Device) Select(ctx context.Context) (gatt.Peripheral, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selects++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.cancel || d.p == nil {
		return nil, gatt.ErrNoDeviceSelected
	}
	return d.p, nil
}

// A WriteHook observes every write that reaches a connection.
type WriteHook func(c *Conn, char gatt.UUID, b []byte)

type charDef struct {
	svc   gatt.UUID
	char  gatt.UUID
	props gatt.Property
}

// Peripheral is an in-memory gatt.Peripheral. Characteristic values
// survive reconnects.
type Peripheral struct {
	id   string
	name string
	mtu  int

	mu           sync.Mutex
	chars        map[string]charDef
	values       map[string][]byte
	failConnects int
	connects     int
	conns        []*Conn
	latency      time.Duration
	onWrite      WriteHook
	onConnect    func(*Conn)
}

// NewPeripheral returns a peripheral without characteristics.
// An mtu of 0 leaves the MTU unreported.
func NewPeripheral(id, name string, mtu int) *Peripheral {
	return &Peripheral{
		id:     id,
		name:   name,
		mtu:    mtu,
		chars:  make(map[string]charDef),
		values: make(map[string][]byte),
	}
}

func key(svc, char gatt.UUID) string {
	return svc.String() + "/" + char.String()
}

func (p *Peripheral) ID() string   { return p.id }
func (p *Peripheral) Name() string { return p.name }

// AddCharacteristic adds a characteristic with an initial value.
func (p *Peripheral) AddCharacteristic(svc, char gatt.UUID, props gatt.Property, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(svc, char)
	p.chars[k] = charDef{svc: svc, char: char, props: props}
	p.values[k] = append([]byte(nil), value...)
}

// SetValue replaces the value returned by reads.
func (p *Peripheral) SetValue(svc, char gatt.UUID, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key(svc, char)] = append([]byte(nil), value...)
}

// FailConnects makes the next n Connect calls fail.
func (p *Peripheral) FailConnects(n int) {
	p.mu.Lock()
	p.failConnects = n
	p.mu.Unlock()
}

// OnWrite installs a hook run after every successful write.
func (p *Peripheral) OnWrite(h WriteHook) {
	p.mu.Lock()
	p.onWrite = h
	p.mu.Unlock()
}

// OnConnect installs a hook run for every new connection.
func (p *Peripheral) OnConnect(f func(*Conn)) {
	p.mu.Lock()
	p.onConnect = f
	p.mu.Unlock()
}

// SetLatency makes every connection operation take at least d.
func (p *Peripheral) SetLatency(d time.Duration) {
	p.mu.Lock()
	p.latency = d
	p.mu.Unlock()
}

// Connects returns how many times Connect was called.
func (p *Peripheral) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Conn returns the most recent connection, or nil.
func (p *Peripheral) Conn() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

func (p *Peripheral) Connect(ctx context.Context) (gatt.Conn, error) {
	p.mu.Lock()
	p.connects++
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.failConnects > 0 {
		p.failConnects--
		p.mu.Unlock()
		return nil, ErrRefused
	}
	c := &Conn{
		p:        p,
		handlers: make(map[string]gatt.NotificationHandler),
		disc:     make(chan struct{}),
	}
	p.conns = append(p.conns, c)
	hook := p.onConnect
	p.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return c, nil
}

// Write is one write seen by a connection.
type Write struct {
	Char  gatt.UUID
	Data  []byte
	NoRsp bool
}

// Conn is an in-memory gatt.Conn.
type Conn struct {
	p *Peripheral

	mu         sync.Mutex
	handlers   map[string]gatt.NotificationHandler
	writes     []Write
	failWrites []error
	discovers  int
	disc       chan struct{}
	closeOnce  sync.Once

	inflight    int32
	maxInflight int32
}

func (c *Conn) MTU() int { return c.p.mtu }

func (c *Conn) enter() error {
	n := atomic.AddInt32(&c.inflight, 1)
	for {
		m := atomic.LoadInt32(&c.maxInflight)
		if n <= m || atomic.CompareAndSwapInt32(&c.maxInflight, m, n) {
			break
		}
	}
	c.p.mu.Lock()
	d := c.p.latency
	c.p.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	if c.closed() {
		atomic.AddInt32(&c.inflight, -1)
		return ErrClosed
	}
	return nil
}

func (c *Conn) leave() {
	atomic.AddInt32(&c.inflight, -1)
}

func (c *Conn) closed() bool {
	select {
	case <-c.disc:
		return true
	default:
		return false
	}
}

func (c *Conn) DiscoverCharacteristic(ctx context.Context, svc, char gatt.UUID) (*gatt.Characteristic, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	defer c.leave()

	c.mu.Lock()
	c.discovers++
	c.mu.Unlock()

	k := key(svc, char)
	c.p.mu.Lock()
	def, ok := c.p.chars[k]
	c.p.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(ErrNotFound, k)
	}
	return gatt.NewCharacteristic(def.svc, def.char, def.props, k), nil
}

func (c *Conn) ReadCharacteristic(ctx context.Context, ch *gatt.Characteristic) ([]byte, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	defer c.leave()

	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return append([]byte(nil), c.p.values[ch.Native().(string)]...), nil
}

func (c *Conn) WriteCharacteristic(ctx context.Context, ch *gatt.Characteristic, b []byte, noRsp bool) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()

	c.mu.Lock()
	if len(c.failWrites) > 0 {
		err := c.failWrites[0]
		c.failWrites = c.failWrites[1:]
		c.mu.Unlock()
		return err
	}
	data := append([]byte(nil), b...)
	c.writes = append(c.writes, Write{Char: ch.UUID(), Data: data, NoRsp: noRsp})
	c.mu.Unlock()

	c.p.mu.Lock()
	if !noRsp {
		c.p.values[ch.Native().(string)] = data
	}
	hook := c.p.onWrite
	c.p.mu.Unlock()

	if hook != nil {
		hook(c, ch.UUID(), data)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, ch *gatt.Characteristic, h gatt.NotificationHandler) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()

	c.mu.Lock()
	c.handlers[ch.Native().(string)] = h
	c.mu.Unlock()
	return nil
}

func (c *Conn) Unsubscribe(ctx context.Context, ch *gatt.Characteristic) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()

	c.mu.Lock()
	delete(c.handlers, ch.Native().(string))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Disconnected() <-chan struct{} { return c.disc }

func (c *Conn) Close() error {
	c.Drop()
	return nil
}

// Drop ends the connection as if the peripheral went out of range.
func (c *Conn) Drop() {
	c.closeOnce.Do(func() { close(c.disc) })
}

// Notify delivers b to the handler subscribed to the characteristic and
// reports whether there was one.
func (c *Conn) Notify(svc, char gatt.UUID, b []byte) bool {
	if c.closed() {
		return false
	}
	c.mu.Lock()
	h := c.handlers[key(svc, char)]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(b)
	return true
}

// Subscribed reports whether notifications of the characteristic are enabled.
func (c *Conn) Subscribed(svc, char gatt.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[key(svc, char)] != nil
}

// FailNextWrite makes the next write fail with err.
func (c *Conn) FailNextWrite(err error) {
	c.mu.Lock()
	c.failWrites = append(c.failWrites, err)
	c.mu.Unlock()
}

// Writes returns the writes seen so far.
func (c *Conn) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// Discovers returns how many characteristic discoveries ran.
func (c *Conn) Discovers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovers
}

// MaxInflight returns the largest number of operations that ran at once.
func (c *Conn) MaxInflight() int {
	return int(atomic.LoadInt32(&c.maxInflight))
}
