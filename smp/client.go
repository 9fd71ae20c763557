package smp

import (
	"context"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt"
)

// maxPending is the number of sequence numbers.
const maxPending = 256

// Channel is the transport a Client runs over. *gatt.Channel implements it.
type Channel interface {
	WriteWithoutResponse(ctx context.Context, b []byte) error
	Subscribe(ctx context.Context, h gatt.NotificationHandler) (*gatt.Subscription, error)
	Unsubscribe(ctx context.Context, s *gatt.Subscription) error
	Rearm(ctx context.Context) error
	MaxPayload() int
}

// A Client exchanges SMP requests and responses over one Channel.
// Responses are matched to requests by sequence number.
type Client struct {
	ch      Channel
	log     logrus.FieldLogger
	timeout time.Duration
	metrics *Metrics

	armmu sync.Mutex
	sub   *gatt.Subscription

	mu       sync.Mutex
	seq      uint8
	pending  *lru.Cache
	evictErr error

	rxmu sync.Mutex
	rx   Reassembler
}

type transaction struct {
	seq   uint8
	group Group
	id    uint8
	timer *time.Timer
	done  chan struct{}

	// set before done is closed
	frame *Frame
	err   error
}

// finish must be called with Client.mu held, once.
func (t *transaction) finish() {
	if t.timer != nil {
		t.timer.Stop()
	}
	close(t.done)
}

// NewClient returns a Client on ch. It subscribes to ch on first use.
func NewClient(ch Channel, opts ...Option) *Client {
	c := &Client{
		ch:       ch,
		log:      logrus.StandardLogger().WithField("module", "smp"),
		timeout:  DefaultTimeout,
		pending:  lru.New(maxPending),
		evictErr: ErrTooManyPending,
	}
	c.pending.OnEvicted = func(_ lru.Key, v interface{}) {
		tx := v.(*transaction)
		if tx.frame == nil && tx.err == nil {
			tx.err = c.evictErr
		}
		tx.finish()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxPayload returns the largest frame a single write can carry.
func (c *Client) MaxPayload() int { return c.ch.MaxPayload() }

// Metrics returns the collectors the client updates, or nil.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Raw is a request payload that Send puts on the wire as is.
type Raw []byte

// Send encodes req as CBOR, sends it and decodes the response into rsp.
// A nil req sends an empty payload and a Raw req is sent unencoded; a nil
// rsp only checks the status.
func (c *Client) Send(ctx context.Context, op Op, group Group, id uint8, req, rsp interface{}) error {
	var payload []byte
	switch r := req.(type) {
	case nil:
	case Raw:
		payload = r
	default:
		b, err := cbor.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "smp: encode request")
		}
		payload = b
	}
	f, err := c.Transact(ctx, op, group, id, payload)
	if err != nil {
		return err
	}
	if err := f.Decode(rsp); err != nil {
		if errors.Is(err, ErrRejected) {
			c.metrics.transaction("rejected")
		}
		return err
	}
	return nil
}

// Transact sends one frame and waits for the response frame with the
// same sequence number.
func (c *Client) Transact(ctx context.Context, op Op, group Group, id uint8, payload []byte) (*Frame, error) {
	if len(payload) > MaxPayloadLen {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(payload))
	}
	if err := c.arm(ctx); err != nil {
		c.metrics.transaction("error")
		return nil, err
	}
	tx, err := c.register(group, id)
	if err != nil {
		c.metrics.transaction("error")
		return nil, err
	}

	f := &Frame{Header: Header{Op: op, Group: group, Seq: tx.seq, ID: id}, Payload: payload}
	log := c.log.WithFields(logrus.Fields{"op": op, "group": group, "id": id, "seq": tx.seq, "len": len(payload)})
	log.Debug("send")
	if err := c.write(ctx, f.Marshal()); err != nil {
		c.abandon(tx, err)
		c.metrics.transaction("error")
		return nil, errors.Wrap(err, "smp: write")
	}

	select {
	case <-tx.done:
	case <-ctx.Done():
		c.abandon(tx, ctx.Err())
		<-tx.done
	}
	if tx.err != nil {
		if errors.Is(tx.err, ErrTimeout) {
			c.metrics.transaction("timeout")
		} else {
			c.metrics.transaction("error")
		}
		log.WithError(tx.err).Debug("transaction failed")
		return nil, tx.err
	}
	c.metrics.transaction("ok")
	return tx.frame, nil
}

// Reset rejects every pending transaction with err and drops any
// partially received frame.
func (c *Client) Reset(err error) {
	c.rxmu.Lock()
	c.rx.Reset()
	c.rxmu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.pending.Len(); n > 0 {
		c.log.WithField("pending", n).WithError(err).Debug("reset")
	}
	c.evictErr = err
	for c.pending.Len() > 0 {
		c.pending.RemoveOldest()
	}
	c.evictErr = ErrTooManyPending
}

// Close unsubscribes from the channel and rejects pending transactions.
func (c *Client) Close(ctx context.Context) error {
	c.armmu.Lock()
	sub := c.sub
	c.sub = nil
	c.armmu.Unlock()

	c.Reset(ErrReset)
	if sub == nil {
		return nil
	}
	return c.ch.Unsubscribe(ctx, sub)
}

// arm makes sure notifications reach the client on the current connection.
func (c *Client) arm(ctx context.Context) error {
	c.armmu.Lock()
	defer c.armmu.Unlock()
	if c.sub == nil {
		s, err := c.ch.Subscribe(ctx, c.handleNotification)
		if err != nil {
			return errors.Wrap(err, "smp: subscribe")
		}
		c.sub = s
		return nil
	}
	return c.ch.Rearm(ctx)
}

// register allocates a free sequence number. The transaction is in the
// pending table before its request is written.
func (c *Client) register(group Group, id uint8) (*transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < maxPending; i++ {
		seq := c.seq
		c.seq++
		if _, busy := c.pending.Get(seq); busy {
			continue
		}
		tx := &transaction{seq: seq, group: group, id: id, done: make(chan struct{})}
		c.pending.Add(seq, tx)
		if c.timeout > 0 {
			tx.timer = time.AfterFunc(c.timeout, func() { c.abandon(tx, ErrTimeout) })
		}
		return tx, nil
	}
	return nil, ErrTooManyPending
}

// abandon removes tx with err if it is still pending.
func (c *Client) abandon(tx *transaction, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.pending.Get(tx.seq); ok && v == tx {
		tx.err = err
		c.pending.Remove(tx.seq)
	}
}

func (c *Client) write(ctx context.Context, b []byte) error {
	err := c.ch.WriteWithoutResponse(ctx, b)
	if err == nil || !stale(err) {
		return err
	}
	c.log.WithError(err).Debug("channel went stale, resolving again")
	if rerr := c.ch.Rearm(ctx); rerr != nil {
		return err
	}
	return c.ch.WriteWithoutResponse(ctx, b)
}

func stale(err error) bool {
	return errors.Is(err, gatt.ErrStaleChannel) || errors.Is(err, gatt.ErrChannelUnavailable)
}

func (c *Client) handleNotification(b []byte) {
	c.rxmu.Lock()
	frames := c.rx.Push(b)
	c.rxmu.Unlock()

	for _, raw := range frames {
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		c.log.WithError(err).Warn("dropping frame")
		c.metrics.drop("decode")
		return
	}
	log := c.log.WithFields(logrus.Fields{"op": f.Op, "group": f.Group, "id": f.ID, "seq": f.Seq, "len": f.Len})
	if !f.Op.IsResponse() {
		log.Debug("dropping non-response frame")
		c.metrics.drop("request")
		return
	}
	if err := cbor.Wellformed(f.Payload); err != nil {
		log.WithError(err).Warn("dropping malformed frame")
		c.metrics.drop("decode")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.pending.Get(f.Seq)
	if !ok {
		log.Debug("dropping unmatched frame")
		c.metrics.drop("unmatched")
		return
	}
	tx := v.(*transaction)
	if tx.group != f.Group || tx.id != f.ID {
		log.Warn("dropping frame for another command")
		c.metrics.drop("unmatched")
		return
	}
	log.Debug("recv")
	tx.frame = f
	c.pending.Remove(f.Seq)
}

// pendingLen is used by tests.
func (c *Client) pendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}
