package samples

import "strings"

// PackType is the one letter prefix of a pack id.
type PackType byte

const (
	Official PackType = 'W'
	Public   PackType = 'P'
	User     PackType = 'U'
)

func (t PackType) String() string {
	switch t {
	case Official:
		return "official"
	case Public:
		return "public"
	case User:
		return "user"
	}
	return "unknown"
}

// TypeOf returns the type of a pack id in either UI ("W-UNDRGND") or
// device ("WUNDRGND") form.
func TypeOf(id string) (PackType, bool) {
	if id == "" {
		return 0, false
	}
	switch t := PackType(id[0]); t {
	case Official, Public, User:
		return t, true
	}
	return 0, false
}

func hasUIPrefix(id string) bool {
	_, ok := TypeOf(id)
	return ok && len(id) >= 2 && id[1] == '-'
}

// BaseName strips the type prefix and any device padding.
func BaseName(id string) string {
	if hasUIPrefix(id) {
		return id[2:]
	}
	if _, ok := TypeOf(id); ok {
		return strings.TrimRight(id[1:], " ")
	}
	return id
}

// ToDeviceID converts an id to the NameLen character device form,
// "W-AAA" becomes "WAAA    ". Unknown types are treated as user packs.
func ToDeviceID(id string) string {
	t, ok := TypeOf(id)
	if !ok {
		t = User
	}
	base := BaseName(id)
	if len(base) > NameLen-1 {
		base = base[:NameLen-1]
	}
	return string(t) + base + strings.Repeat(" ", NameLen-1-len(base))
}

// ToUIID converts a device id to "T-BASE" form. Ids already in that form
// and ids of unknown type are returned unchanged.
func ToUIID(id string) string {
	if hasUIPrefix(id) {
		return id
	}
	if _, ok := TypeOf(id); ok {
		return id[:1] + "-" + strings.TrimRight(id[1:], " ")
	}
	return id
}

// DisplayName returns the part of an id shown to people.
func DisplayName(id string) string {
	if hasUIPrefix(id) {
		return id[2:]
	}
	return BaseName(strings.TrimRight(id, " \x00"))
}

// CanonicalKey identifies a pack independent of id form.
func CanonicalKey(id string) string {
	t, ok := TypeOf(id)
	if !ok {
		t = User
	}
	return string(t) + "|" + strings.TrimSpace(BaseName(id))
}

// RotateForDevice moves the last of NumPages display slots to the front.
// The device numbers its pages 1..9,0 while people read them 0..9.
func RotateForDevice[T any](s []T) []T {
	if len(s) != NumPages {
		return s
	}
	return append([]T{s[NumPages-1]}, s[:NumPages-1]...)
}

// RotateForDisplay is the inverse of RotateForDevice.
func RotateForDisplay[T any](s []T) []T {
	if len(s) != NumPages {
		return s
	}
	return append(append([]T(nil), s[1:]...), s[0])
}
