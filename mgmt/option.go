package mgmt

import (
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt/transfer"
)

// Option configures a manager.
type Option func(*config)

type config struct {
	log      logrus.FieldLogger
	transfer []transfer.Option
}

// WithLogger sets the logger of the manager and of its transfer.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) { c.log = log }
}

// WithTransferOptions configures the manager's upload and download
// transfer.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(c *config) { c.transfer = append(c.transfer, opts...) }
}

func newConfig(opts []Option) *config {
	c := &config{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transferOptions puts the logger first so explicit options win.
func (c *config) transferOptions(extra ...transfer.Option) []transfer.Option {
	opts := []transfer.Option{transfer.WithLogger(c.log)}
	opts = append(opts, c.transfer...)
	return append(opts, extra...)
}
