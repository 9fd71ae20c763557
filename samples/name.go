package samples

import (
	"strings"

	"github.com/pkg/errors"
)

// emptyWord marks an empty page in both name words.
const emptyWord = 0xFFFFFFFF

// EncodeName returns name as NameLen latin-1 bytes, zero padded.
func EncodeName(name string) ([NameLen]byte, error) {
	var b [NameLen]byte
	i := 0
	for _, r := range name {
		if r > 0xFF {
			return b, errors.Wrapf(ErrName, "%q: character %q is not 8-bit", name, r)
		}
		if i == NameLen {
			return b, errors.Wrapf(ErrName, "%q is longer than %d characters", name, NameLen)
		}
		b[i] = byte(r)
		i++
	}
	return b, nil
}

// DecodeName reads latin-1 bytes up to the first NUL.
func DecodeName(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == 0 {
			break
		}
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// NameWords packs a name into the two words stored on the device. The
// lower word holds bytes 0..3, least significant byte first.
func NameWords(name string) (upper, lower uint32, err error) {
	b, err := EncodeName(name)
	if err != nil {
		return 0, 0, err
	}
	lower = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	upper = uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24
	if upper == emptyWord && lower == emptyWord {
		return 0, 0, errors.Wrapf(ErrName, "%q collides with the empty page marker", name)
	}
	return upper, lower, nil
}

// NameFromWords is the inverse of NameWords. ok is false when both words
// carry the empty page marker.
func NameFromWords(upper, lower uint32) (name string, ok bool) {
	if upper == emptyWord && lower == emptyWord {
		return "", false
	}
	b := [NameLen]byte{
		byte(lower), byte(lower >> 8), byte(lower >> 16), byte(lower >> 24),
		byte(upper), byte(upper >> 8), byte(upper >> 16), byte(upper >> 24),
	}
	return DecodeName(b[:]), true
}
