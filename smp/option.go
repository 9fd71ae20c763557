package smp

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds how long a transaction waits for its response.
const DefaultTimeout = 10 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per transaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log.WithField("module", "smp") }
}

// WithMetrics sets the collectors updated by the client.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}
