package samples

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Layout of the encoded form. All words are little endian.
//
//	reserved   4 x u32
//	upper     10 x u32   name bytes 4..7 per page
//	lower     10 x u32   name bytes 0..3 per page
//	offsets  150 x u16   loop offset into the blob, 0xFFFF for none
//	blob                 per loop: u8 beats, u8 count, count x (u16, u16)
const (
	reservedLen   = 4 * 4
	namesLen      = 2 * NumPages * 4
	offsetsLen    = NumPages * LoopsPerPage * 2
	headerLen     = reservedLen + namesLen + offsetsLen
	loopHeaderLen = 2
	eventLen      = 4

	noLoop = 0xFFFF
)

var le = binary.LittleEndian

func offsetAt(page, loop int) int {
	return reservedLen + namesLen + (page*LoopsPerPage+loop)*2
}

// EncodedSize returns the length of Encode's output for ds.
func EncodedSize(ds *DeviceSamples) int {
	n := headerLen
	for _, p := range ds.Pages {
		n += p.Size()
	}
	return n
}

// Encode returns the device form of ds.
func Encode(ds *DeviceSamples) ([]byte, error) {
	if ds == nil {
		return nil, errors.New("samples: nil device samples")
	}
	buf := make([]byte, headerLen, EncodedSize(ds))
	for i, w := range ds.Reserved {
		le.PutUint32(buf[i*4:], w)
	}
	for i, p := range ds.Pages {
		upper, lower := uint32(emptyWord), uint32(emptyWord)
		if p != nil {
			var err error
			if upper, lower, err = NameWords(p.Name); err != nil {
				return nil, errors.WithMessagef(err, "page %d", i)
			}
		}
		le.PutUint32(buf[reservedLen+i*4:], upper)
		le.PutUint32(buf[reservedLen+NumPages*4+i*4:], lower)
	}

	var blob []byte
	for i, p := range ds.Pages {
		for j := 0; j < LoopsPerPage; j++ {
			off := noLoop
			if p != nil && p.Loops[j] != nil {
				if len(blob) >= noLoop {
					return nil, errors.Wrapf(ErrRange, "page %d loop %d: loop data exceeds %d bytes", i, j, noLoop-1)
				}
				off = len(blob)
				var err error
				if blob, err = appendLoop(blob, p.Loops[j]); err != nil {
					return nil, errors.WithMessagef(err, "page %d loop %d", i, j)
				}
			}
			le.PutUint16(buf[offsetAt(i, j):], uint16(off))
		}
	}
	return append(buf, blob...), nil
}

func appendLoop(b []byte, l *LoopData) ([]byte, error) {
	if l.LengthBeats < 0 || l.LengthBeats > 0xFF {
		return nil, errors.Wrapf(ErrRange, "length %d beats", l.LengthBeats)
	}
	if len(l.Events) > MaxEvents {
		return nil, errors.Wrapf(ErrRange, "%d events, at most %d", len(l.Events), MaxEvents)
	}
	b = append(b, byte(l.LengthBeats), byte(len(l.Events)))
	for k, e := range l.Events {
		w0, w1, err := packEvent(e)
		if err != nil {
			return nil, errors.WithMessagef(err, "event %d", k)
		}
		b = le.AppendUint16(b, w0)
		b = le.AppendUint16(b, w1)
	}
	return b, nil
}

func packEvent(e DrumEvent) (w0, w1 uint16, err error) {
	switch {
	case e.Note < 0 || e.Note > MaxNote:
		return 0, 0, errors.Wrapf(ErrRange, "note %d", e.Note)
	case e.Velocity < 0 || e.Velocity > MaxVelocity:
		return 0, 0, errors.Wrapf(ErrRange, "velocity %d", e.Velocity)
	case e.Press < 0 || e.Press > MaxTick:
		return 0, 0, errors.Wrapf(ErrRange, "press tick %d", e.Press)
	case e.Release < 0 || e.Release > MaxTick:
		return 0, 0, errors.Wrapf(ErrRange, "release tick %d", e.Release)
	}
	w0 = uint16(e.Note) | uint16(e.Press)<<7
	w1 = uint16(e.Velocity) | uint16(e.Release)<<7
	return w0, w1, nil
}

func unpackEvent(w0, w1 uint16) DrumEvent {
	return DrumEvent{
		Note:     int(w0 & 0x7F),
		Press:    int(w0 >> 7),
		Velocity: int(w1 & 0x7F),
		Release:  int(w1 >> 7),
	}
}

// Decode parses the device form. Loops are read in page and slot order
// and their stated offsets must agree with that order. Bytes after the
// last loop are ignored.
func Decode(b []byte) (*DeviceSamples, error) {
	if len(b) < headerLen {
		return nil, errors.Wrapf(ErrTruncatedInput, "%d bytes, header needs %d", len(b), headerLen)
	}
	ds := &DeviceSamples{}
	for i := range ds.Reserved {
		ds.Reserved[i] = le.Uint32(b[i*4:])
	}
	for i := range ds.Pages {
		upper := le.Uint32(b[reservedLen+i*4:])
		lower := le.Uint32(b[reservedLen+NumPages*4+i*4:])
		if name, ok := NameFromWords(upper, lower); ok {
			ds.Pages[i] = &SamplePack{Name: name}
		}
	}

	blob := b[headerLen:]
	pos := 0
	for i, p := range ds.Pages {
		for j := 0; j < LoopsPerPage; j++ {
			off := int(le.Uint16(b[offsetAt(i, j):]))
			if off == noLoop {
				continue
			}
			if p == nil {
				return nil, errors.Wrapf(ErrCorrupt, "page %d is empty but has loop %d", i, j)
			}
			if off != pos {
				return nil, errors.Wrapf(ErrCorrupt, "page %d loop %d: offset %d, expected %d", i, j, off, pos)
			}
			if pos+loopHeaderLen > len(blob) {
				return nil, errors.Wrapf(ErrTruncatedInput, "page %d loop %d header", i, j)
			}
			l := &LoopData{LengthBeats: int(blob[pos])}
			n := int(blob[pos+1])
			pos += loopHeaderLen
			if pos+n*eventLen > len(blob) {
				return nil, errors.Wrapf(ErrTruncatedInput, "page %d loop %d: %d events", i, j, n)
			}
			if n > 0 {
				l.Events = make([]DrumEvent, n)
				for k := range l.Events {
					l.Events[k] = unpackEvent(le.Uint16(blob[pos:]), le.Uint16(blob[pos+2:]))
					pos += eventLen
				}
			}
			p.Loops[j] = l
		}
	}
	return ds, nil
}
