package gatt

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Link owns the connection to one peripheral. It reconnects after an
// unexpected loss and runs every transport operation through one FIFO
// queue, so the backend never sees two operations at once.
type Link struct {
	dev        Device
	log        logrus.FieldLogger
	backoff    Backoff
	defaultMTU int
	q          *queue

	mu       sync.Mutex
	state    State
	p        Peripheral
	conn     Conn
	mtu      int
	gen      uint64
	chars    map[string]*Characteristic
	channels map[string]*Channel
	cancel   context.CancelFunc
	idle     chan struct{}

	hmu sync.RWMutex
	h   linkHandler
}

// NewLink returns a disconnected Link that selects its peripheral from dev.
func NewLink(dev Device, opts ...Option) (*Link, error) {
	l := &Link{
		dev:        dev,
		log:        logrus.StandardLogger().WithField("module", "link"),
		backoff:    DefaultBackoff(),
		defaultMTU: DefaultMTU,
		chars:      make(map[string]*Characteristic),
		channels:   make(map[string]*Channel),
	}
	if err := l.Option(opts...); err != nil {
		return nil, err
	}
	l.q = newQueue()
	return l, nil
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Peripheral returns the selected peripheral, or nil.
func (l *Link) Peripheral() Peripheral {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p
}

// Generation counts successful connections. Handles resolved under an
// older generation are stale.
func (l *Link) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// MaxPayload returns the largest value a single write or notification
// can carry on the current connection.
func (l *Link) MaxPayload() int {
	l.mu.Lock()
	mtu := l.mtu
	l.mu.Unlock()
	if mtu <= 0 {
		mtu = l.defaultMTU
	}
	return MaxPayload(mtu)
}

// Connect selects a peripheral and connects to it, retrying the connect
// with the configured backoff.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateDisconnected {
		s := l.state
		l.mu.Unlock()
		return errors.Wrapf(ErrBusyLink, "connect in state %s", s)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.cancel = cancel
	l.setStateLocked(StateSelectingDevice)
	l.mu.Unlock()
	l.fireState(StateSelectingDevice)

	p, err := l.dev.Select(ctx)
	if err != nil {
		if l.settle() {
			l.fireDisconnected()
			return errors.Wrap(context.Canceled, "connect aborted")
		}
		if errors.Is(err, ErrNoDeviceSelected) {
			l.log.Info("device selection cancelled")
			for _, f := range l.handlers().selectionCancelled {
				f()
			}
			return ErrNoDeviceSelected
		}
		l.fireFailed(err)
		return errors.Wrap(err, "select device")
	}

	l.mu.Lock()
	if l.state != StateSelectingDevice {
		l.mu.Unlock()
		l.settle()
		l.fireDisconnected()
		return errors.Wrap(context.Canceled, "connect aborted")
	}
	l.p = p
	l.setStateLocked(StateConnecting)
	l.mu.Unlock()
	l.fireState(StateConnecting)

	conn, err := l.dial(ctx, p)
	if err != nil {
		if l.settle() {
			l.fireDisconnected()
			return errors.Wrap(err, "connect aborted")
		}
		l.log.WithError(err).Error("connect failed")
		l.fireFailed(err)
		return err
	}

	l.mu.Lock()
	if l.state != StateConnecting {
		l.mu.Unlock()
		conn.Close()
		l.settle()
		l.fireDisconnected()
		return errors.Wrap(context.Canceled, "connect aborted")
	}
	l.attachLocked(conn)
	l.setStateLocked(StateConnected)
	l.cancel = nil
	l.mu.Unlock()

	l.log.WithField("peripheral", p.ID()).Info("connected")
	l.fireState(StateConnected)
	for _, f := range l.handlers().connected {
		f(p)
	}
	return nil
}

// Disconnect closes the connection, or stops a connect or reconnect in
// progress, and waits until the link is disconnected.
func (l *Link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	var done chan struct{}
	switch l.state {
	case StateDisconnected:
		l.mu.Unlock()
		return ErrNotConnected
	case StateDisconnecting:
		done = l.idle
		l.mu.Unlock()
	case StateConnected:
		conn := l.conn
		l.setStateLocked(StateDisconnecting)
		l.idle = make(chan struct{})
		done = l.idle
		l.mu.Unlock()
		l.fireState(StateDisconnecting)
		if err := conn.Close(); err != nil {
			l.log.WithError(err).Warn("close connection")
		}
	default:
		cancel := l.cancel
		l.setStateLocked(StateDisconnecting)
		l.idle = make(chan struct{})
		done = l.idle
		l.mu.Unlock()
		l.fireState(StateDisconnecting)
		if cancel != nil {
			cancel()
		}
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects if needed and stops the operation queue. The Link
// cannot be used afterwards.
func (l *Link) Close(ctx context.Context) error {
	var err error
	if l.State() != StateDisconnected {
		err = l.Disconnect(ctx)
		if errors.Is(err, ErrNotConnected) {
			err = nil
		}
	}
	l.q.close()
	return err
}

// Channel returns the Channel for a service and characteristic pair.
// The same pair always yields the same Channel.
func (l *Link) Channel(svc, char UUID) *Channel {
	key := channelKey(svc, char)
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.channels[key]; ok {
		return c
	}
	c := &Channel{link: l, svc: svc, char: char, key: key}
	l.channels[key] = c
	return c
}

// do queues fn to run with the current connection.
func (l *Link) do(ctx context.Context, key string, fn func(ctx context.Context, c Conn, gen uint64) error) error {
	return l.q.do(ctx, func(ctx context.Context) error {
		l.mu.Lock()
		conn, gen, state := l.conn, l.gen, l.state
		l.mu.Unlock()
		if conn == nil || state != StateConnected {
			return &UnavailableError{Key: key, Err: ErrTransportUnavailable}
		}
		return fn(ctx, conn, gen)
	})
}

func (l *Link) cached(key string) *Characteristic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chars[key]
}

func (l *Link) store(key string, c *Characteristic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil && c.gen == l.gen {
		l.chars[key] = c
	}
}

func (l *Link) dial(ctx context.Context, p Peripheral) (Conn, error) {
	var err error
	for attempt := 1; attempt <= l.backoff.Attempts; attempt++ {
		var conn Conn
		if conn, err = p.Connect(ctx); err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == l.backoff.Attempts {
			break
		}
		d := l.backoff.Delay(attempt)
		l.log.WithFields(logrus.Fields{"attempt": attempt, "delay": d}).WithError(err).Warn("connect attempt failed")
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, errors.Wrapf(ErrConnectFailed, "after %d attempts: %v", l.backoff.Attempts, err)
}

// attachLocked makes conn the current connection. l.mu must be held.
func (l *Link) attachLocked(conn Conn) {
	l.conn = conn
	l.mtu = conn.MTU()
	l.gen++
	l.chars = make(map[string]*Characteristic)
	go l.watch(conn, l.gen)
}

// watch waits for conn to go down and reacts according to the state.
func (l *Link) watch(conn Conn, gen uint64) {
	<-conn.Disconnected()

	l.mu.Lock()
	if l.conn != conn || l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	l.mtu = 0
	switch l.state {
	case StateDisconnecting:
		l.mu.Unlock()
		l.settle()
		l.log.Info("disconnected")
		l.fireDisconnected()
	case StateConnected:
		p := l.p
		ctx, cancel := context.WithCancel(context.Background())
		l.cancel = cancel
		l.setStateLocked(StateConnectionLoss)
		l.mu.Unlock()

		l.log.WithField("peripheral", p.ID()).Warn("connection lost")
		l.fireState(StateConnectionLoss)
		for _, f := range l.handlers().connectionLost {
			f(p)
		}
		l.reconnect(ctx, cancel, p)
	default:
		l.mu.Unlock()
	}
}

func (l *Link) reconnect(ctx context.Context, cancel context.CancelFunc, p Peripheral) {
	defer cancel()

	conn, err := l.dial(ctx, p)
	if err != nil {
		if !l.settle() {
			l.log.WithError(err).Error("reconnect failed")
			l.fireFailed(err)
		}
		l.fireDisconnected()
		return
	}

	l.mu.Lock()
	if l.state != StateConnectionLoss {
		l.mu.Unlock()
		conn.Close()
		l.settle()
		l.fireDisconnected()
		return
	}
	l.attachLocked(conn)
	l.setStateLocked(StateConnected)
	l.cancel = nil
	l.mu.Unlock()

	l.log.WithField("peripheral", p.ID()).Info("connection reestablished")
	l.fireState(StateConnected)
	for _, f := range l.handlers().reestablished {
		f(p)
	}
}

// settle moves the link to StateDisconnected and reports whether a
// Disconnect call asked for it.
func (l *Link) settle() (requested bool) {
	l.mu.Lock()
	requested = l.state == StateDisconnecting
	l.setStateLocked(StateDisconnected)
	l.mu.Unlock()
	l.fireState(StateDisconnected)
	return requested
}

// setStateLocked must be called with l.mu held.
func (l *Link) setStateLocked(s State) {
	if l.state == s {
		return
	}
	l.log.WithFields(logrus.Fields{"from": l.state, "to": s}).Debug("state change")
	l.state = s
	switch s {
	case StateConnectionLoss:
		l.chars = make(map[string]*Characteristic)
	case StateDisconnected:
		l.chars = make(map[string]*Characteristic)
		l.p = nil
		l.cancel = nil
		if l.idle != nil {
			close(l.idle)
			l.idle = nil
		}
	}
}

func (l *Link) fireState(s State) {
	for _, f := range l.handlers().stateChanged {
		f(s)
	}
}

func (l *Link) fireDisconnected() {
	for _, f := range l.handlers().disconnected {
		f()
	}
}

func (l *Link) fireFailed(err error) {
	for _, f := range l.handlers().connectFailed {
		f(err)
	}
}
