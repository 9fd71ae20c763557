// Package samples holds the sample pack data model and its binary form
// as stored on the device.
package samples

const (
	TicksPerBeat = 24
	NumPages     = 10
	LoopsPerPage = 15

	// NameLen is the fixed size of a pack name on the device.
	NameLen = 8

	MaxNote     = 127
	MaxVelocity = 127
	MaxTick     = 511
	MaxEvents   = 255
)

// DrumEvent is one hit within a loop. Ticks count from the start of the
// loop at TicksPerBeat per beat.
type DrumEvent struct {
	Note     int `json:"note"`
	Press    int `json:"time_ticks_press"`
	Velocity int `json:"velocity"`
	Release  int `json:"time_ticks_release"`
}

// LoopData is one loop of a pack.
type LoopData struct {
	LengthBeats int         `json:"length_beats"`
	Events      []DrumEvent `json:"events"`
}

// SamplePack is a named set of loops. Empty loop slots are nil.
type SamplePack struct {
	Name  string                  `json:"name"`
	Loops [LoopsPerPage]*LoopData `json:"loops"`
}

// DeviceSamples is everything the device stores. Empty pages are nil.
type DeviceSamples struct {
	Reserved [4]uint32             `json:"reserved"`
	Pages    [NumPages]*SamplePack `json:"pages"`
}

// NewDeviceSamples returns an empty set with the reserved words in their
// erased state.
func NewDeviceSamples() *DeviceSamples {
	ds := &DeviceSamples{}
	for i := range ds.Reserved {
		ds.Reserved[i] = 0xFFFFFFFF
	}
	return ds
}

// IDs returns the page names, "" for empty pages.
func (ds *DeviceSamples) IDs() []string {
	ids := make([]string, NumPages)
	for i, p := range ds.Pages {
		if p != nil {
			ids[i] = p.Name
		}
	}
	return ids
}

// Size returns the number of loop bytes the pack takes up on the device.
func (p *SamplePack) Size() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, l := range p.Loops {
		if l != nil {
			n += loopHeaderLen + eventLen*len(l.Events)
		}
	}
	return n
}
