// Package gatt provides the central (client) side of a Bluetooth Low
// Energy GATT connection to a single peripheral.
//
// STATUS
//
// The package talks to peripherals through a small backend interface
// (Device, Peripheral, Conn). The goble package implements it on top of
// github.com/go-ble/ble and the gatttest package implements it in memory.
//
// LINK
//
// A Link owns the connection to one peripheral:
//
//     Disconnected -> SelectingDevice -> Connecting -> Connected
//     Connected -> ConnectionLoss -> Connected | Disconnected
//     Connected -> Disconnecting -> Disconnected
//
// Connection attempts are retried with exponential backoff (300ms base,
// factor 2, capped at 5s, 20 attempts). An unexpected drop while connected
// moves the link to ConnectionLoss and runs the same retry loop. The
// application can tell a fresh session from a resumed one through the
// Connected and ConnectionReestablished handlers.
//
// Every transport operation goes through one FIFO queue, so the backend
// never sees two requests at once.
//
// USAGE
//
//     link, err := gatt.NewLink(dev)
//     if err != nil {
//     	log.Fatal(err)
//     }
//     link.Handle(
//     	gatt.ConnectionLost(func(p gatt.Peripheral) { log.Println("lost", p.ID()) }),
//     	gatt.ConnectionReestablished(func(p gatt.Peripheral) { log.Println("back", p.ID()) }),
//     )
//     if err := link.Connect(ctx); err != nil {
//     	log.Fatal(err)
//     }
//
//     ch := link.Channel(gatt.BatteryServiceUUID, gatt.BatteryLevelCharUUID)
//     b, err := ch.Read(ctx)
//
// Characteristic handles are cached per connection and dropped whenever
// the link leaves Connected; channels resolve them again on next use.
package gatt
