package samples

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type packJSON struct {
	Name  string      `json:"name"`
	Loops []*LoopData `json:"loops"`
}

// UnmarshalJSON accepts a loop list of any length up to LoopsPerPage.
func (p *SamplePack) UnmarshalJSON(b []byte) error {
	var raw packJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Loops) > LoopsPerPage {
		return errors.Wrapf(ErrRange, "pack %q has %d loops, at most %d", raw.Name, len(raw.Loops), LoopsPerPage)
	}
	p.Name = raw.Name
	p.Loops = [LoopsPerPage]*LoopData{}
	copy(p.Loops[:], raw.Loops)
	return nil
}

// ParsePack decodes a pack file.
func ParsePack(b []byte) (*SamplePack, error) {
	p := &SamplePack{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(err, "samples: parse pack")
	}
	return p, nil
}
