package gatt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// A UUID is a BLE UUID. The bytes are held in the little-endian order
// they travel in on the wire.
type UUID struct {
	// Hide the bytes, so that we can enforce that they have length 2 or 16,
	// and that they are immutable. This simplifies the code and API.
	b []byte
}

// UUID16 converts a uint16 (such as 0x1800) to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID{b}
}

// ParseUUID parses a standard-format UUID string, such
// as "1800" or "34da3ad1-7110-41a1-b1ef-4430f509cde7".
func ParseUUID(s string) (UUID, error) {
	if len(s) == 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return UUID{}, errors.Wrapf(err, "invalid UUID %q", s)
		}
		return UUID16(uint16(v)), nil
	}
	u, err := uuid.FromString(s)
	if err != nil {
		// satori only accepts the 32 digit form when it is braced or dashed.
		if len(s) == 32 {
			u, err = uuid.FromString(s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:])
		}
		if err != nil {
			return UUID{}, errors.Wrapf(err, "invalid UUID %q", s)
		}
	}
	return UUID{reverse(u.Bytes())}, nil
}

// MustParseUUID parses a standard-format UUID string,
// like ParseUUID, but panics in case of error.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Len returns the length of the UUID, in bytes.
// BLE UUIDs are either 2 or 16 bytes.
func (u UUID) Len() int {
	return len(u.b)
}

// Bytes returns a copy of the UUID in wire (little-endian) order.
func (u UUID) Bytes() []byte {
	return append([]byte(nil), u.b...)
}

// String hex-encodes a UUID in the canonical, big-endian form.
func (u UUID) String() string {
	switch len(u.b) {
	case 2:
		return fmt.Sprintf("%x", reverse(u.b))
	case 16:
		return uuid.FromBytesOrNil(reverse(u.b)).String()
	}
	return fmt.Sprintf("%x", reverse(u.b))
}

// Equal returns a boolean reporting whether v represent the same UUID as u.
func (u UUID) Equal(v UUID) bool {
	return bytes.Equal(u.b, v.b)
}

// reverse returns a reversed copy of u.
func reverse(u []byte) []byte {
	// Special-case 16 bit UUIDS for speed.
	l := len(u)
	if l == 2 {
		return []byte{u[1], u[0]}
	}
	b := make([]byte, l)
	for i := 0; i < l/2+1; i++ {
		b[i], b[l-i-1] = u[l-i-1], u[i]
	}
	return b
}
