package smp

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// HeaderSize is the size of the SMP header in bytes.
const HeaderSize = 8

// MaxPayloadLen is the largest payload the 16 bit length field can describe.
const MaxPayloadLen = 0xFFFF

// Op is the SMP operation code.
type Op uint8

const (
	OpRead     Op = 0
	OpReadRsp  Op = 1
	OpWrite    Op = 2
	OpWriteRsp Op = 3
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpReadRsp:
		return "read-rsp"
	case OpWrite:
		return "write"
	case OpWriteRsp:
		return "write-rsp"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Response returns the response op that answers o.
func (o Op) Response() Op { return o | 1 }

// IsResponse reports whether o is a response op.
func (o Op) IsResponse() bool { return o&1 == 1 }

// Group is an SMP management group.
type Group uint16

// Header is the 8 byte SMP header.
//
//	0      1      2      4      6    7    8
//	+------+------+------+------+----+----+
//	| op   | flags| len  | group| seq| id |
//	+------+------+------+------+----+----+
//
// len and group are big-endian.
type Header struct {
	Op    Op
	Flags uint8
	Len   uint16
	Group Group
	Seq   uint8
	ID    uint8
}

// Marshal returns the wire form of h.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	h.put(b)
	return b
}

func (h Header) put(b []byte) {
	b[0] = byte(h.Op)
	b[1] = h.Flags
	binary.BigEndian.PutUint16(b[2:4], h.Len)
	binary.BigEndian.PutUint16(b[4:6], uint16(h.Group))
	b[6] = h.Seq
	b[7] = h.ID
}

// ParseHeader parses the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Wrapf(ErrDecode, "header needs %d bytes, have %d", HeaderSize, len(b))
	}
	return Header{
		Op:    Op(b[0]),
		Flags: b[1],
		Len:   binary.BigEndian.Uint16(b[2:4]),
		Group: Group(binary.BigEndian.Uint16(b[4:6])),
		Seq:   b[6],
		ID:    b[7],
	}, nil
}

// A Frame is one complete SMP message.
type Frame struct {
	Header
	Payload []byte
}

// Marshal returns the header followed by the payload. The header length
// is taken from the payload.
func (f *Frame) Marshal() []byte {
	b := make([]byte, HeaderSize+len(f.Payload))
	h := f.Header
	h.Len = uint16(len(f.Payload))
	h.put(b)
	copy(b[HeaderSize:], f.Payload)
	return b
}

// ParseFrame parses a complete frame. The declared length must match
// the data exactly.
func ParseFrame(b []byte) (*Frame, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if n := len(b) - HeaderSize; n != int(h.Len) {
		return nil, errors.Wrapf(ErrDecode, "header declares %d payload bytes, have %d", h.Len, n)
	}
	return &Frame{Header: h, Payload: append([]byte(nil), b[HeaderSize:]...)}, nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s group=%d id=%d seq=%d len=%d", f.Op, f.Group, f.ID, f.Seq, f.Len)
}

// status holds both the SMP v1 and v2 error forms.
type status struct {
	Rc  int    `cbor:"rc"`
	Rsn string `cbor:"rsn"`
	Err *struct {
		Group int `cbor:"group"`
		Rc    int `cbor:"rc"`
	} `cbor:"err"`
}

// Decode checks the response status of f and decodes its payload into v.
// v may be nil when only the status matters.
func (f *Frame) Decode(v interface{}) error {
	var st status
	if err := cbor.Unmarshal(f.Payload, &st); err != nil {
		return errors.Wrapf(ErrDecode, "%s: %v", f, err)
	}
	if st.Err != nil && st.Err.Rc != 0 {
		return &RcError{Group: Group(st.Err.Group), ID: f.ID, Rc: Rc(st.Err.Rc)}
	}
	if st.Rc != 0 {
		return &RcError{Group: f.Group, ID: f.ID, Rc: Rc(st.Rc), Reason: st.Rsn}
	}
	if v == nil {
		return nil
	}
	if err := cbor.Unmarshal(f.Payload, v); err != nil {
		return errors.Wrapf(ErrDecode, "%s: %v", f, err)
	}
	return nil
}
