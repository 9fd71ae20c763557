// Package smptest simulates an SMP device on top of a gatttest peripheral.
package smptest

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/wavyindustries/gatt"
	"github.com/wavyindustries/gatt/gatttest"
	"github.com/wavyindustries/gatt/smp"
)

// A HandlerFunc answers one request. The returned value is encoded as the
// response payload; a nil value means the device never answers.
type HandlerFunc func(op smp.Op, payload []byte) interface{}

// Server answers SMP requests written to the SMP characteristic of a
// gatttest peripheral. Responses are delivered from a single goroutine
// in request order.
type Server struct {
	mu       sync.Mutex
	handlers map[uint32]HandlerFunc
	fragment int
	requests []*smp.Frame

	out  chan delivery
	quit chan struct{}
	once sync.Once
}

type delivery struct {
	conn  *gatttest.Conn
	frags [][]byte
}

// New adds the SMP characteristic to p and starts answering requests.
func New(p *gatttest.Peripheral) *Server {
	s := &Server{
		handlers: make(map[uint32]HandlerFunc),
		out:      make(chan delivery, 1024),
		quit:     make(chan struct{}),
	}
	p.AddCharacteristic(gatt.SMPServiceUUID, gatt.SMPCharUUID, gatt.CharWriteNR|gatt.CharNotify, nil)
	p.OnWrite(s.write)
	go s.loop()
	return s
}

func handlerKey(group smp.Group, id uint8) uint32 {
	return uint32(group)<<8 | uint32(id)
}

// Handle sets the handler for a group and command.
func (s *Server) Handle(group smp.Group, id uint8, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[handlerKey(group, id)] = h
	s.mu.Unlock()
}

// Fragment splits every response into notifications of at most n bytes.
func (s *Server) Fragment(n int) {
	s.mu.Lock()
	s.fragment = n
	s.mu.Unlock()
}

// Requests returns the requests received so far.
func (s *Server) Requests() []*smp.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*smp.Frame(nil), s.requests...)
}

// Count returns how many requests were received for a group and command.
func (s *Server) Count(group smp.Group, id uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.requests {
		if f.Group == group && f.ID == id {
			n++
		}
	}
	return n
}

// Close stops delivering responses.
func (s *Server) Close() {
	s.once.Do(func() { close(s.quit) })
}

func (s *Server) write(c *gatttest.Conn, char gatt.UUID, b []byte) {
	if !char.Equal(gatt.SMPCharUUID) {
		return
	}
	req, err := smp.ParseFrame(b)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	h := s.handlers[handlerKey(req.Group, req.ID)]
	n := s.fragment
	s.mu.Unlock()

	var body interface{} = map[string]int{"rc": int(smp.RcNotSup)}
	if h != nil {
		body = h(req.Op, req.Payload)
	}
	if body == nil {
		return
	}
	payload, err := cbor.Marshal(body)
	if err != nil {
		return
	}
	rsp := &smp.Frame{
		Header:  smp.Header{Op: req.Op.Response(), Group: req.Group, Seq: req.Seq, ID: req.ID},
		Payload: payload,
	}
	raw := rsp.Marshal()

	d := delivery{conn: c}
	if n <= 0 {
		n = len(raw)
	}
	for len(raw) > 0 {
		k := n
		if k > len(raw) {
			k = len(raw)
		}
		d.frags = append(d.frags, raw[:k])
		raw = raw[k:]
	}
	select {
	case s.out <- d:
	case <-s.quit:
	}
}

func (s *Server) loop() {
	for {
		select {
		case d := <-s.out:
			for _, f := range d.frags {
				d.conn.Notify(gatt.SMPServiceUUID, gatt.SMPCharUUID, f)
			}
		case <-s.quit:
			return
		}
	}
}

// Decode is a helper for handlers that decodes a request payload.
func Decode(payload []byte, v interface{}) error {
	return cbor.Unmarshal(payload, v)
}
