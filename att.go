package gatt

const (
	// attHeaderSize is the opcode plus handle prefix of a write or notification.
	attHeaderSize = 3

	// DefaultMTU is used when the backend does not report a negotiated MTU.
	DefaultMTU = 252

	attMinMTU = 23
	attMaxMTU = 517
)

// MaxPayload returns the largest value that fits one ATT write or
// notification at the given MTU.
func MaxPayload(mtu int) int {
	if mtu < attMinMTU {
		mtu = attMinMTU
	}
	if mtu > attMaxMTU {
		mtu = attMaxMTU
	}
	return mtu - attHeaderSize
}
