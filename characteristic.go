package gatt

import "fmt"

// Do not re-order the bit flags below;
// they are organized to match the BLE spec.

// Property is the set of characteristic property flags.
type Property int

// Characteristic property flags.
const (
	CharRead     Property = 1 << (iota + 1) // the characteristic may be read
	CharWriteNR                             // the characteristic may be written to, with no reply
	CharWrite                               // the characteristic may be written to, with a reply
	CharNotify                              // the characteristic supports notifications
	CharIndicate                            // the characteristic supports indications
)

// A Characteristic is a resolved characteristic handle. It is only
// valid on the connection it was discovered on.
type Characteristic struct {
	svc   UUID
	uuid  UUID
	props Property
	gen   uint64

	// native is the backend's own handle.
	native interface{}
}

// NewCharacteristic is used by backends to wrap their own handle.
func NewCharacteristic(svc, char UUID, props Property, native interface{}) *Characteristic {
	return &Characteristic{svc: svc, uuid: char, props: props, native: native}
}

// Service returns the UUID of the service that contains c.
func (c *Characteristic) Service() UUID { return c.svc }

// UUID returns the UUID of c.
func (c *Characteristic) UUID() UUID { return c.uuid }

// Properties returns the property flags of c.
func (c *Characteristic) Properties() Property { return c.props }

// Native returns the backend handle passed to NewCharacteristic.
func (c *Characteristic) Native() interface{} { return c.native }

func (c *Characteristic) String() string {
	return fmt.Sprintf("%s/%s", c.svc, c.uuid)
}

func (p Property) String() (result string) {
	for i, s := range []string{"read", "writeNR", "write", "notify", "indicate"} {
		if p&(1<<uint(i+1)) == 0 {
			continue
		}
		if result != "" {
			result += "|"
		}
		result += s
	}
	return result
}

func channelKey(svc, char UUID) string {
	return svc.String() + "/" + char.String()
}
