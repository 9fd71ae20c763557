package smp

import "encoding/binary"

// A Reassembler turns notification fragments back into frames. Fragment
// boundaries are unrelated to frame boundaries.
type Reassembler struct {
	buf []byte
}

// Push appends b and returns every frame that is now complete. A partial
// tail stays buffered for the next call.
func (r *Reassembler) Push(b []byte) [][]byte {
	r.buf = append(r.buf, b...)

	var frames [][]byte
	for len(r.buf) >= HeaderSize {
		n := HeaderSize + int(binary.BigEndian.Uint16(r.buf[2:4]))
		if len(r.buf) < n {
			break
		}
		frame := make([]byte, n)
		copy(frame, r.buf[:n])
		frames = append(frames, frame)
		r.buf = r.buf[n:]
	}
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return frames
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Reset drops any partial frame.
func (r *Reassembler) Reset() { r.buf = nil }
