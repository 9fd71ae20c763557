package gatt

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// A Channel is a service and characteristic pair on a Link. The
// characteristic is resolved once per connection and cached by the Link.
type Channel struct {
	link *Link
	svc  UUID
	char UUID
	key  string
	subs notifier

	mu    sync.Mutex
	armed uint64 // generation notifications are enabled on
}

// Service returns the service UUID of c.
func (c *Channel) Service() UUID { return c.svc }

// Characteristic returns the characteristic UUID of c.
func (c *Channel) Characteristic() UUID { return c.char }

func (c *Channel) String() string { return c.key }

// MaxPayload returns the largest value one write can carry.
func (c *Channel) MaxPayload() int { return c.link.MaxPayload() }

// Resolve returns the characteristic handle for the current connection,
// discovering it through the Link queue on first use.
func (c *Channel) Resolve(ctx context.Context) (*Characteristic, error) {
	if ch := c.link.cached(c.key); ch != nil {
		return ch, nil
	}
	var ch *Characteristic
	err := c.link.do(ctx, c.key, func(ctx context.Context, conn Conn, gen uint64) error {
		if cc := c.link.cached(c.key); cc != nil && cc.gen == gen {
			ch = cc
			return nil
		}
		cc, err := conn.DiscoverCharacteristic(ctx, c.svc, c.char)
		if err != nil {
			return &UnavailableError{Key: c.key, Err: err}
		}
		cc.gen = gen
		c.link.store(c.key, cc)
		ch = cc
		return nil
	})
	return ch, err
}

// Read reads the characteristic value.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	ch, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	var b []byte
	err = c.link.do(ctx, c.key, func(ctx context.Context, conn Conn, gen uint64) error {
		if ch.gen != gen {
			return errors.Wrap(ErrStaleChannel, c.key)
		}
		var err error
		b, err = conn.ReadCharacteristic(ctx, ch)
		return err
	})
	return b, err
}

// Write writes b and waits for the peripheral to acknowledge it.
func (c *Channel) Write(ctx context.Context, b []byte) error {
	return c.write(ctx, b, false)
}

// WriteWithoutResponse writes b without waiting for an acknowledgement.
func (c *Channel) WriteWithoutResponse(ctx context.Context, b []byte) error {
	return c.write(ctx, b, true)
}

func (c *Channel) write(ctx context.Context, b []byte, noRsp bool) error {
	ch, err := c.Resolve(ctx)
	if err != nil {
		return err
	}
	return c.link.do(ctx, c.key, func(ctx context.Context, conn Conn, gen uint64) error {
		if ch.gen != gen {
			return errors.Wrap(ErrStaleChannel, c.key)
		}
		return conn.WriteCharacteristic(ctx, ch, b, noRsp)
	})
}

// Subscribe registers h for notifications and enables them on the
// peripheral if they are not enabled yet.
func (c *Channel) Subscribe(ctx context.Context, h NotificationHandler) (*Subscription, error) {
	s := c.subs.add(h)
	if err := c.Rearm(ctx); err != nil {
		c.subs.remove(s)
		return nil, err
	}
	return s, nil
}

// Rearm enables notifications on the current connection for the
// existing subscriptions. It is a no-op when they are already enabled.
func (c *Channel) Rearm(ctx context.Context) error {
	if c.subs.len() == 0 {
		return nil
	}
	if c.armedOn(c.link.Generation()) && c.link.cached(c.key) != nil {
		return nil
	}
	ch, err := c.Resolve(ctx)
	if err != nil {
		return err
	}
	return c.link.do(ctx, c.key, func(ctx context.Context, conn Conn, gen uint64) error {
		if ch.gen != gen {
			return errors.Wrap(ErrStaleChannel, c.key)
		}
		if c.armedOn(gen) {
			return nil
		}
		if err := conn.Subscribe(ctx, ch, c.subs.notify); err != nil {
			return errors.Wrapf(err, "subscribe %s", c.key)
		}
		c.mu.Lock()
		c.armed = gen
		c.mu.Unlock()
		c.link.log.WithField("channel", c.key).Debug("notifications enabled")
		return nil
	})
}

// Unsubscribe removes s. Notifications are disabled on the peripheral
// once the last subscription is gone.
func (c *Channel) Unsubscribe(ctx context.Context, s *Subscription) error {
	if s == nil || s.Done() {
		return nil
	}
	if c.subs.remove(s) > 0 {
		return nil
	}
	ch := c.link.cached(c.key)
	if ch == nil {
		return nil
	}
	err := c.link.do(ctx, c.key, func(ctx context.Context, conn Conn, gen uint64) error {
		if c.subs.len() > 0 || ch.gen != gen || !c.armedOn(gen) {
			return nil
		}
		c.mu.Lock()
		c.armed = 0
		c.mu.Unlock()
		return conn.Unsubscribe(ctx, ch)
	})
	if errors.Is(err, ErrTransportUnavailable) {
		return nil
	}
	return err
}

func (c *Channel) armedOn(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != 0 && c.armed == gen
}
