package devinfo

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt"
)

// Command identifies one field of the device state.
type Command uint16

const (
	CmdOctave       Command = 0x0001
	CmdChannel      Command = 0x0002
	CmdMuteMask     Command = 0x0003
	CmdPlayback     Command = 0x0005
	CmdRecording    Command = 0x0006
	CmdBPM          Command = 0x0007
	CmdEffect       Command = 0x0008
	CmdEffectPreset Command = 0x0009
	CmdHold         Command = 0x000a
	CmdUndoSession  Command = 0x000b
	CmdPowerState   Command = 0x000c
	CmdConnInterval Command = 0x000d
	CmdConnLatency  Command = 0x000e
	CmdConnTimeout  Command = 0x000f
)

// stateRecord is <cmd u16><value u16>, little endian.
const stateRecord = 4

// Effect is the active performance effect.
type Effect int

var effectNames = map[Effect]string{
	0: "none",
	1: "arpeggio",
	2: "double",
	3: "drum",
	4: "stutter",
	5: "echo",
	6: "pattern",
}

func (e Effect) String() string {
	if s, ok := effectNames[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(e))
}

// Snapshot is the device state as last notified. Fields the device has
// not reported yet are zero; Known tells them apart.
type Snapshot struct {
	Octave       int
	Channel      int
	MuteMask     uint16
	Playback     bool
	Recording    bool
	BPM          int
	Effect       Effect
	EffectPreset int
	Hold         bool
	UndoSession  int
	PowerState   int
	ConnInterval int
	ConnLatency  int
	ConnTimeout  int

	known uint32
}

// Known reports whether the device has sent a value for c.
func (s Snapshot) Known(c Command) bool {
	return c < 32 && s.known&(1<<c) != 0
}

// Apply decodes the records in b into s. It reports whether a field was
// set and returns the commands it skipped. A trailing partial record is
// ignored.
func (s *Snapshot) Apply(b []byte) (updated bool, unknown []Command) {
	for off := 0; off+stateRecord <= len(b); off += stateRecord {
		cmd := Command(binary.LittleEndian.Uint16(b[off:]))
		raw := binary.LittleEndian.Uint16(b[off+2:])
		switch cmd {
		case CmdOctave:
			s.Octave = int(int16(raw))
		case CmdChannel:
			s.Channel = int(raw & 0xff)
		case CmdMuteMask:
			s.MuteMask = raw
		case CmdPlayback:
			s.Playback = raw != 0
		case CmdRecording:
			s.Recording = raw != 0
		case CmdBPM:
			s.BPM = int(raw)
		case CmdEffect:
			s.Effect = Effect(raw)
		case CmdEffectPreset:
			s.EffectPreset = int(raw)
		case CmdHold:
			s.Hold = raw != 0
		case CmdUndoSession:
			s.UndoSession = int(raw)
		case CmdPowerState:
			s.PowerState = int(raw)
		case CmdConnInterval:
			s.ConnInterval = int(raw)
		case CmdConnLatency:
			s.ConnLatency = int(raw)
		case CmdConnTimeout:
			s.ConnTimeout = int(raw)
		default:
			unknown = append(unknown, cmd)
			continue
		}
		s.known |= 1 << cmd
		updated = true
	}
	return updated, unknown
}

// Fields returns the snapshot as log fields, "unset" for unknown ones.
func (s Snapshot) Fields() logrus.Fields {
	f := logrus.Fields{}
	put := func(c Command, k string, v interface{}) {
		if !s.Known(c) {
			v = "unset"
		}
		f[k] = v
	}
	put(CmdOctave, "octave", s.Octave)
	put(CmdChannel, "channel", s.Channel)
	put(CmdMuteMask, "mute_mask", fmt.Sprintf("0x%04x", s.MuteMask))
	put(CmdPlayback, "playback", s.Playback)
	put(CmdRecording, "recording", s.Recording)
	put(CmdBPM, "bpm", s.BPM)
	put(CmdEffect, "effect", s.Effect.String())
	put(CmdEffectPreset, "effect_preset", s.EffectPreset)
	put(CmdHold, "hold", s.Hold)
	put(CmdUndoSession, "undo_session", s.UndoSession)
	put(CmdPowerState, "power_state", s.PowerState)
	put(CmdConnInterval, "conn_interval", s.ConnInterval)
	put(CmdConnLatency, "conn_latency", s.ConnLatency)
	put(CmdConnTimeout, "conn_timeout", s.ConnTimeout)
	return f
}

// State follows the device state characteristic.
type State struct {
	ch  *gatt.Channel
	log logrus.FieldLogger

	mu   sync.Mutex
	snap Snapshot
}

// NewState returns a State on l. A nil log uses the standard logger.
func NewState(l *gatt.Link, log logrus.FieldLogger) *State {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &State{
		ch:  l.Channel(gatt.StateServiceUUID, gatt.StateCharUUID),
		log: log.WithField("module", "device_state"),
	}
}

// Snapshot returns the current state.
func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snap
}

// Reset forgets every reported value.
func (st *State) Reset() {
	st.mu.Lock()
	st.snap = Snapshot{}
	st.mu.Unlock()
}

func (st *State) handle(b []byte) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.log.Debugf("received %d bytes of device state", len(b))
	updated, unknown := st.snap.Apply(b)
	for _, c := range unknown {
		st.log.Warnf("unknown state command 0x%x", uint16(c))
	}
	return st.snap, updated
}

// Watch calls f with the full state after every notification that
// changed it. f may be nil. Stop the notifications with Unwatch.
func (st *State) Watch(ctx context.Context, f func(Snapshot)) (*gatt.Subscription, error) {
	return st.ch.Subscribe(ctx, func(b []byte) {
		snap, updated := st.handle(b)
		if !updated {
			return
		}
		st.log.WithFields(snap.Fields()).Debug("device state")
		if f != nil {
			f(snap)
		}
	})
}

// Unwatch stops a Watch.
func (st *State) Unwatch(ctx context.Context, s *gatt.Subscription) error {
	return st.ch.Unsubscribe(ctx, s)
}
