package samples

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareIdentical(t *testing.T) {
	a := fixture()
	b, err := Encode(a)
	assert.NoError(t, err)
	got, err := Decode(b)
	assert.NoError(t, err)

	d := Compare(a, got)
	assert.True(t, d.Identical())
	assert.Equal(t, "identical", d.String())
}

func TestCompareCanonical(t *testing.T) {
	a := NewDeviceSamples()
	a.Pages[0] = &SamplePack{Name: "WAAA"}
	a.Pages[0].Loops[0] = &LoopData{LengthBeats: 2, Events: []DrumEvent{}}

	b := &DeviceSamples{}
	b.Pages[0] = &SamplePack{Name: "WAAA    "}
	b.Pages[0].Loops[0] = &LoopData{LengthBeats: 2}

	assert.True(t, Compare(a, b).Identical())
}

func TestCompareDifferences(t *testing.T) {
	a := fixture()

	b := fixture()
	b.Pages[0].Loops[0].Events[1].Velocity = 81
	d := Compare(a, b)
	assert.False(t, d.Identical())
	assert.False(t, d.Pages[0].LoopsSame[0])
	assert.True(t, d.Pages[0].LoopsSame[14])
	assert.True(t, d.Pages[2].Identical())
	assert.Equal(t, `page 0 (W-AAA): loops 0 differ`, d.String())

	b = fixture()
	b.Pages[2].Name = "U-CCC"
	d = Compare(a, b)
	assert.Equal(t, []string{`page 2: name "U-BBB", got "U-CCC"`}, d.Differences())

	b = fixture()
	b.Pages[1] = &SamplePack{Name: "WNEW"}
	d = Compare(a, b)
	assert.Equal(t, []string{"page 1: present false, got true"}, d.Differences())

	b = fixture()
	b.Pages[2].Loops[3] = nil
	assert.False(t, Compare(a, b).Identical())
}
