package samples

import (
	"fmt"
	"strings"
)

// ValidationErrors lists every problem found in a sample set.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return "samples: " + strings.Join(v, "; ")
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// ValidatePack checks the limits the firmware expects of one pack. id is
// only used in messages.
func ValidatePack(id string, p *SamplePack) []string {
	var errs []string
	if !printable(p.Name) {
		errs = append(errs, fmt.Sprintf("pack %s: name contains non-ASCII characters", id))
	}
	for li, l := range p.Loops {
		if l == nil {
			continue
		}
		if l.LengthBeats <= 0 {
			errs = append(errs, fmt.Sprintf("pack %s loop %d: invalid length_beats", id, li+1))
		}
		if l.LengthBeats > 16 {
			errs = append(errs, fmt.Sprintf("pack %s loop %d: length exceeds 16 beats", id, li+1))
		}
		if len(l.Events) > MaxEvents {
			errs = append(errs, fmt.Sprintf("pack %s loop %d: too many events (>%d)", id, li+1, MaxEvents))
		}
		// First bad event per loop only.
		for _, e := range l.Events {
			if msg := checkEvent(e); msg != "" {
				errs = append(errs, fmt.Sprintf("pack %s loop %d: %s", id, li+1, msg))
				break
			}
		}
	}
	return errs
}

func checkEvent(e DrumEvent) string {
	switch {
	case e.Note < 0 || e.Note > MaxNote:
		return fmt.Sprintf("note out of range (%d)", e.Note)
	case e.Velocity < 0 || e.Velocity > MaxVelocity:
		return fmt.Sprintf("velocity out of range (%d)", e.Velocity)
	case e.Press < 0 || e.Press > MaxTick:
		return fmt.Sprintf("press tick out of range (%d)", e.Press)
	case e.Release < 1 || e.Release > MaxTick:
		return fmt.Sprintf("release tick out of range (%d)", e.Release)
	case e.Release <= e.Press:
		return "release must be after press"
	}
	return ""
}

// Validate checks every page of ds and, when storageTotal is positive,
// that the encoded form fits. It returns nil or ValidationErrors.
func Validate(ds *DeviceSamples, storageTotal int) error {
	if ds == nil {
		return ValidationErrors{"no samples given"}
	}
	var errs ValidationErrors
	for _, p := range ds.Pages {
		if p == nil {
			continue
		}
		errs = append(errs, ValidatePack(ToUIID(p.Name), p)...)
	}
	if _, err := Encode(ds); err != nil {
		errs = append(errs, fmt.Sprintf("failed to prepare samples for upload: %v", err))
	} else if n := EncodedSize(ds); storageTotal > 0 && n > storageTotal {
		errs = append(errs, fmt.Sprintf("selected packs exceed device storage: %d > %d bytes", n, storageTotal))
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
