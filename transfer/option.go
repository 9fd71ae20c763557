package transfer

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultOverhead is subtracted from every chunk on top of the
	// measured header and envelope size.
	DefaultOverhead = 20

	DefaultChunkTimeout = 15 * time.Second
	DefaultMaxStalls    = 3
	DefaultMaxDownload  = 1 << 20
)

// Option configures a Transfer.
type Option func(*Transfer)

// WithOverhead sets the slack subtracted from each chunk budget.
func WithOverhead(n int) Option {
	return func(t *Transfer) { t.overhead = n }
}

// WithChunkTimeout bounds each chunk exchange.
func WithChunkTimeout(d time.Duration) Option {
	return func(t *Transfer) { t.chunkTimeout = d }
}

// WithMaxStalls sets how many replies in a row may leave the offset
// unchanged before the transfer is aborted.
func WithMaxStalls(n int) Option {
	return func(t *Transfer) { t.maxStalls = n }
}

// WithMaxDownload caps the length a device may announce for a download.
func WithMaxDownload(n int) Option {
	return func(t *Transfer) { t.maxDownload = n }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Transfer) { t.log = log.WithField("module", "transfer") }
}

// WithEncoding sets how chunk requests are encoded. The default is CBOR.
func WithEncoding(e Encoding) Option {
	return func(t *Transfer) { t.encoding = e }
}
