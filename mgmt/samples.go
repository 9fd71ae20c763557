package mgmt

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt/samples"
	"github.com/wavyindustries/gatt/smp"
	"github.com/wavyindustries/gatt/transfer"
)

// Mode selects which sample bank the device plays from.
type Mode int

const (
	ModeDRM Mode = 0
	ModePAT Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeDRM:
		return "DRM"
	case ModePAT:
		return "PAT"
	}
	return "UNKNOWN"
}

// Space is the sample storage usage reported by the device.
type Space struct {
	Total int   `cbor:"tot"`
	Used  int   `cbor:"usd"`
	Packs []int `cbor:"packs,omitempty"`
}

// SampleManager reads and writes the sample storage.
type SampleManager struct {
	r   Requester
	tr  *transfer.Transfer
	log logrus.FieldLogger
}

// NewSampleManager returns a SampleManager using r. Chunk requests use
// the binary transfer encoding the sample group expects.
func NewSampleManager(r Requester, opts ...Option) *SampleManager {
	c := newConfig(opts)
	return &SampleManager{
		r:   r,
		tr:  transfer.New(r, GroupSamples, CmdSampleData, c.transferOptions(transfer.WithEncoding(transfer.Binary))...),
		log: c.log.WithField("module", "mgmt"),
	}
}

// IDs returns the pack name of every page, "" for empty pages.
func (m *SampleManager) IDs(ctx context.Context) ([]string, error) {
	var rsp struct {
		IDs []uint32 `cbor:"ids"`
	}
	if err := m.r.Send(ctx, smp.OpRead, GroupSamples, CmdSampleIDs, nil, &rsp); err != nil {
		return nil, errors.WithMessage(err, "sample ids")
	}
	if len(rsp.IDs)%2 != 0 {
		return nil, errors.Wrapf(smp.ErrDecode, "sample ids: odd word count %d", len(rsp.IDs))
	}
	ids := make([]string, 0, len(rsp.IDs)/2)
	for i := 0; i < len(rsp.IDs); i += 2 {
		// Each pair is lower word first.
		name, _ := samples.NameFromWords(rsp.IDs[i+1], rsp.IDs[i])
		ids = append(ids, name)
	}
	return ids, nil
}

// IsSet reports whether the device holds any samples.
func (m *SampleManager) IsSet(ctx context.Context) (bool, error) {
	var rsp struct {
		Set bool `cbor:"set"`
	}
	if err := m.r.Send(ctx, smp.OpRead, GroupSamples, CmdSampleIsSet, nil, &rsp); err != nil {
		return false, errors.WithMessage(err, "sample is-set")
	}
	return rsp.Set, nil
}

// SpaceUsed returns the storage usage.
func (m *SampleManager) SpaceUsed(ctx context.Context) (*Space, error) {
	var sp Space
	if err := m.r.Send(ctx, smp.OpRead, GroupSamples, CmdSampleSpaceUsed, nil, &sp); err != nil {
		return nil, errors.WithMessage(err, "sample space")
	}
	return &sp, nil
}

// Mode returns the active sample bank.
func (m *SampleManager) Mode(ctx context.Context) (Mode, error) {
	var rsp struct {
		Mode *int `cbor:"mode"`
	}
	if err := m.r.Send(ctx, smp.OpRead, GroupSamples, CmdSampleMode, nil, &rsp); err != nil {
		return 0, errors.WithMessage(err, "sample mode")
	}
	if rsp.Mode == nil {
		return 0, errors.Wrap(smp.ErrDecode, "sample mode: no mode in response")
	}
	return Mode(*rsp.Mode), nil
}

// SetMode switches the sample bank. The request body is the bare mode
// number.
func (m *SampleManager) SetMode(ctx context.Context, mode Mode) error {
	if err := m.r.Send(ctx, smp.OpWrite, GroupSamples, CmdSampleMode, uint8(mode), nil); err != nil {
		return errors.WithMessage(err, "set sample mode")
	}
	return nil
}

// Upload encodes ds and writes it to the device.
func (m *SampleManager) Upload(ctx context.Context, ds *samples.DeviceSamples, progress transfer.ProgressFunc) error {
	b, err := samples.Encode(ds)
	if err != nil {
		return err
	}
	m.log.WithField("len", len(b)).Info("uploading samples")
	return m.tr.Upload(ctx, b, transfer.UploadOptions{Progress: progress})
}

// Download reads and decodes the samples stored on the device.
func (m *SampleManager) Download(ctx context.Context, progress transfer.ProgressFunc) (*samples.DeviceSamples, error) {
	b, err := m.tr.Download(ctx, progress)
	if err != nil {
		return nil, err
	}
	return samples.Decode(b)
}

// Busy reports whether a transfer is running.
func (m *SampleManager) Busy() bool { return m.tr.Busy() }

// Wait blocks until no transfer is running.
func (m *SampleManager) Wait(ctx context.Context) error { return m.tr.Wait(ctx) }

// Reset abandons a running transfer.
func (m *SampleManager) Reset() { m.tr.Reset() }

// PackUsage returns the bytes each page of ds takes up.
func PackUsage(ds *samples.DeviceSamples) []int {
	out := make([]int, samples.NumPages)
	for i, p := range ds.Pages {
		out[i] = p.Size()
	}
	return out
}
