package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt"
	"github.com/wavyindustries/gatt/samplesync"
	"github.com/wavyindustries/gatt/transfer"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger handed to every component.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) { s.log = log }
}

// WithLinkOptions passes options to the Link.
func WithLinkOptions(opts ...gatt.Option) Option {
	return func(s *Session) { s.linkOpts = append(s.linkOpts, opts...) }
}

// WithTransferOptions passes options to the sample and image transfers.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(s *Session) { s.transferOpts = append(s.transferOpts, opts...) }
}

// WithTimeout bounds each SMP transaction.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithProgress reports sample transfer progress.
func WithProgress(f samplesync.ProgressFunc) Option {
	return func(s *Session) { s.progress = f }
}

// WithDefaults sets the packs Initialize uploads.
func WithDefaults(d samplesync.DefaultsSource) Option {
	return func(s *Session) { s.defaults = d }
}

// WithRegisterer registers the protocol metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Session) { s.reg = reg }
}
