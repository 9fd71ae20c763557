package gatt

import "context"

// A NotificationHandler receives the value of each notification.
// The slice is only valid for the duration of the call.
type NotificationHandler func(b []byte)

// Conn is one live connection to a peripheral. A Link never calls two
// Conn methods at the same time.
type Conn interface {
	// MTU returns the current connection mtu, or 0 if unknown.
	MTU() int

	// DiscoverCharacteristic resolves a characteristic of a service.
	DiscoverCharacteristic(ctx context.Context, svc, char UUID) (*Characteristic, error)

	// ReadCharacteristic reads the value of c.
	ReadCharacteristic(ctx context.Context, c *Characteristic) ([]byte, error)

	// WriteCharacteristic writes b to c, waiting for the acknowledgement unless noRsp is set.
	WriteCharacteristic(ctx context.Context, c *Characteristic, b []byte, noRsp bool) error

	// Subscribe enables notifications of c and delivers them to h.
	Subscribe(ctx context.Context, c *Characteristic, h NotificationHandler) error

	// Unsubscribe disables notifications of c.
	Unsubscribe(ctx context.Context, c *Characteristic) error

	// Disconnected is closed when the connection goes down for any reason.
	Disconnected() <-chan struct{}

	// Close disconnects the connection.
	Close() error
}
