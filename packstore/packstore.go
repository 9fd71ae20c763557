// Package packstore loads sample packs from disk and assembles them into
// the set stored on a device.
package packstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt/samples"
)

// DefaultDevice is the device family packs are stored under.
const DefaultDevice = "MONKEY"

// DefaultIDs are the packs a fresh device is given.
var DefaultIDs = []string{"W-MIXED", "W-UNDRGND", "W-OLLI", "W-OG"}

// ErrUnknownType is returned for an id without a W, P or U prefix.
var ErrUnknownType = errors.New("packstore: unknown pack type")

// Fetcher returns one pack by id.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*samples.SamplePack, error)
}

// Dir reads packs from <Root>/<Device>/<Mode>/<base>.json.
type Dir struct {
	Root   string
	Device string // DefaultDevice if empty
	Mode   string // "DRM" if empty
}

// Path returns the file holding the pack id.
func (d Dir) Path(id string) string {
	dev, mode := d.Device, d.Mode
	if dev == "" {
		dev = DefaultDevice
	}
	if mode == "" {
		mode = "DRM"
	}
	return filepath.Join(d.Root, dev, mode, samples.ToUIID(id)+".json")
}

// Fetch loads a pack and names it with its device id.
func (d Dir) Fetch(ctx context.Context, id string) (*samples.SamplePack, error) {
	if _, ok := samples.TypeOf(id); !ok {
		return nil, errors.Wrap(ErrUnknownType, id)
	}
	path := d.Path(id)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "packstore: pack %s", id)
	}
	p, err := samples.ParsePack(b)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	p.Name = samples.ToDeviceID(id)
	return p, nil
}

// Build fetches up to NumPages packs into page order. Empty ids leave
// their page empty.
func Build(ctx context.Context, f Fetcher, ids []string) (*samples.DeviceSamples, error) {
	if len(ids) < 1 || len(ids) > samples.NumPages {
		return nil, errors.Errorf("packstore: %d pack ids, want 1 to %d", len(ids), samples.NumPages)
	}
	ds := samples.NewDeviceSamples()
	for i, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := samples.TypeOf(id); !ok {
			return nil, errors.Wrap(ErrUnknownType, id)
		}
		p, err := f.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"module": "packstore", "page": i, "id": id}).Debug("pack loaded")
		ds.Pages[i] = p
	}
	return ds, nil
}

// Defaults builds a fixed list of packs.
type Defaults struct {
	Fetcher Fetcher
	IDs     []string // DefaultIDs if empty
}

// Build implements samplesync.DefaultsSource.
func (d Defaults) Build(ctx context.Context) (*samples.DeviceSamples, error) {
	ids := d.IDs
	if len(ids) == 0 {
		ids = DefaultIDs
	}
	return Build(ctx, d.Fetcher, ids)
}
