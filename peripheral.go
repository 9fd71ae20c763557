package gatt

import "context"

// Peripheral is a remote device that a Link can connect to.
type Peripheral interface {
	// ID returns a backend specific identifier, usually the address.
	ID() string

	// Name returns the advertised name, if any.
	Name() string

	// Connect opens a connection to the peripheral.
	Connect(ctx context.Context) (Conn, error)
}
