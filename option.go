package gatt

import "github.com/sirupsen/logrus"

// Option configures a Link.
type Option func(*Link) error

// WithBackoff sets the connect and reconnect schedule.
func WithBackoff(b Backoff) Option {
	return func(l *Link) error {
		if b.Attempts < 1 {
			b.Attempts = 1
		}
		l.backoff = b
		return nil
	}
}

// WithLogger sets the logger used by the Link and its channels.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Link) error {
		l.log = log.WithField("module", "link")
		return nil
	}
}

// WithDefaultMTU sets the MTU assumed when the backend reports none.
func WithDefaultMTU(mtu int) Option {
	return func(l *Link) error {
		l.defaultMTU = mtu
		return nil
	}
}

// Option sets the options specified.
func (l *Link) Option(opts ...Option) error {
	var err error
	for _, opt := range opts {
		if e := opt(l); e != nil {
			err = e
		}
	}
	return err
}
