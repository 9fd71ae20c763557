package samples

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDeviceID(t *testing.T) {
	tests := map[string]string{
		"W-UNDRGND":  "WUNDRGND",
		"W-AAA":      "WAAA    ",
		"P-LONGNAME": "PLONGNAM",
		"U-BBB":      "UBBB    ",
		"WUNDRGND":   "WUNDRGND",
		"WAAA    ":   "WAAA    ",
		"XYZ":        "UXYZ    ",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToDeviceID(in), in)
	}
}

func TestToUIID(t *testing.T) {
	assert.Equal(t, "W-UNDRGND", ToUIID("WUNDRGND"))
	assert.Equal(t, "W-AAA", ToUIID("WAAA    "))
	assert.Equal(t, "U-BBB", ToUIID("U-BBB"))
	assert.Equal(t, "", ToUIID(""))
	assert.Equal(t, "xyz", ToUIID("xyz"))
}

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf("P-FOO")
	assert.True(t, ok)
	assert.Equal(t, Public, typ)
	assert.Equal(t, "public", typ.String())

	_, ok = TypeOf("Z-FOO")
	assert.False(t, ok)
	_, ok = TypeOf("")
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "UNDRGND", DisplayName("W-UNDRGND"))
	assert.Equal(t, "AAA", DisplayName("WAAA    "))
	assert.Equal(t, CanonicalKey("W-AAA"), CanonicalKey("WAAA    "))
	assert.NotEqual(t, CanonicalKey("W-AAA"), CanonicalKey("U-AAA"))
}

func TestRotate(t *testing.T) {
	display := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	device := RotateForDevice(display)
	assert.Equal(t, []int{9, 0, 1, 2, 3, 4, 5, 6, 7, 8}, device)
	assert.Equal(t, display, RotateForDisplay(device))
	assert.Equal(t, []int{1, 2}, RotateForDevice([]int{1, 2}))
}
