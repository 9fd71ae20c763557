package gatt

import "context"

// State is the connection state of a Link.
type State int

const (
	StateDisconnected    State = 0
	StateSelectingDevice State = 1
	StateConnecting      State = 2
	StateConnected       State = 3
	StateConnectionLoss  State = 4
	StateDisconnecting   State = 5
)

func (s State) String() string {
	str := []string{
		"Disconnected",
		"SelectingDevice",
		"Connecting",
		"Connected",
		"ConnectionLoss",
		"Disconnecting",
	}
	if int(s) < 0 || int(s) >= len(str) {
		return "Unknown"
	}
	return str[int(s)]
}

// Device is the local host side of a BLE backend. It picks the remote
// peripheral a Link connects to.
type Device interface {
	// Select finds the peripheral to connect to. It returns
	// ErrNoDeviceSelected if the selection was cancelled or nothing matched.
	Select(ctx context.Context) (Peripheral, error)
}

// linkHandler is the handlers(callbacks) of the Link.
// Each slot holds every function registered for that event.
type linkHandler struct {
	// stateChanged is called on every state transition.
	stateChanged []func(s State)

	// connected is called when a user initiated connect succeeds.
	connected []func(p Peripheral)

	// connectionLost is called when the transport drops without being asked to.
	connectionLost []func(p Peripheral)

	// reestablished is called when the reconnect loop after a loss succeeds.
	reestablished []func(p Peripheral)

	// disconnected is called when the link settles in StateDisconnected.
	disconnected []func()

	// connectFailed is called when connecting or reconnecting gives up.
	connectFailed []func(err error)

	// selectionCancelled is called when device selection returns nothing.
	selectionCancelled []func()
}

type handler func(*Link)

// Handle registers the specified handlers.
func (l *Link) Handle(hh ...handler) {
	l.hmu.Lock()
	defer l.hmu.Unlock()
	for _, h := range hh {
		h(l)
	}
}

// StateChanged adds a function to be called on every state transition.
func StateChanged(f func(State)) handler {
	return func(l *Link) { l.h.stateChanged = append(l.h.stateChanged, f) }
}

// Connected adds a function to be called when a fresh connection is up.
func Connected(f func(Peripheral)) handler {
	return func(l *Link) { l.h.connected = append(l.h.connected, f) }
}

// ConnectionLost adds a function to be called when the connection drops unexpectedly.
func ConnectionLost(f func(Peripheral)) handler {
	return func(l *Link) { l.h.connectionLost = append(l.h.connectionLost, f) }
}

// ConnectionReestablished adds a function to be called when a lost connection comes back.
func ConnectionReestablished(f func(Peripheral)) handler {
	return func(l *Link) { l.h.reestablished = append(l.h.reestablished, f) }
}

// Disconnected adds a function to be called when the link is fully disconnected.
func Disconnected(f func()) handler {
	return func(l *Link) { l.h.disconnected = append(l.h.disconnected, f) }
}

// ConnectFailed adds a function to be called when connecting gives up.
func ConnectFailed(f func(error)) handler {
	return func(l *Link) { l.h.connectFailed = append(l.h.connectFailed, f) }
}

// SelectionCancelled adds a function to be called when no device was selected.
func SelectionCancelled(f func()) handler {
	return func(l *Link) { l.h.selectionCancelled = append(l.h.selectionCancelled, f) }
}

// handlers returns a snapshot of the registered handlers.
func (l *Link) handlers() linkHandler {
	l.hmu.RLock()
	defer l.hmu.RUnlock()
	return l.h
}
