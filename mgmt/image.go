package mgmt

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/blang/semver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt/smp"
	"github.com/wavyindustries/gatt/transfer"
)

// Image is one firmware slot as reported by the device.
type Image struct {
	Image     int    `cbor:"image"`
	Slot      int    `cbor:"slot"`
	Version   string `cbor:"version"`
	Hash      []byte `cbor:"hash"`
	Bootable  bool   `cbor:"bootable"`
	Pending   bool   `cbor:"pending"`
	Confirmed bool   `cbor:"confirmed"`
	Active    bool   `cbor:"active"`
	Permanent bool   `cbor:"permanent"`
}

func (i Image) String() string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{i.Bootable, "bootable"},
		{i.Pending, "pending"},
		{i.Confirmed, "confirmed"},
		{i.Active, "active"},
		{i.Permanent, "permanent"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return fmt.Sprintf("slot %d: %s [%s]", i.Slot, i.Version, strings.Join(flags, " "))
}

// ImageState is the response to the image state command.
type ImageState struct {
	Images      []Image `cbor:"images"`
	SplitStatus int     `cbor:"splitStatus,omitempty"`
}

// Running returns the active image, or the one in slot 0.
func (s *ImageState) Running() (Image, bool) {
	for _, img := range s.Images {
		if img.Active {
			return img, true
		}
	}
	for _, img := range s.Images {
		if img.Slot == 0 {
			return img, true
		}
	}
	return Image{}, false
}

// ImageManager reads firmware state and uploads new images.
type ImageManager struct {
	r   Requester
	tr  *transfer.Transfer
	log logrus.FieldLogger
}

// NewImageManager returns an ImageManager using r.
func NewImageManager(r Requester, opts ...Option) *ImageManager {
	c := newConfig(opts)
	return &ImageManager{
		r:   r,
		tr:  transfer.New(r, GroupImage, CmdImageUpload, c.transferOptions(transfer.WithEncoding(transfer.CBOR))...),
		log: c.log.WithField("module", "mgmt"),
	}
}

// State lists the firmware slots.
func (m *ImageManager) State(ctx context.Context) (*ImageState, error) {
	var st ImageState
	if err := m.r.Send(ctx, smp.OpRead, GroupImage, CmdImageState, nil, &st); err != nil {
		return nil, errors.WithMessage(err, "image state")
	}
	return &st, nil
}

// Version returns the version of the running firmware.
func (m *ImageManager) Version(ctx context.Context) (semver.Version, error) {
	st, err := m.State(ctx)
	if err != nil {
		return semver.Version{}, err
	}
	img, ok := st.Running()
	if !ok {
		return semver.Version{}, errors.New("image state: no running image")
	}
	return ParseVersion(img.Version)
}

// ParseVersion parses a firmware version. The optional fourth component
// of "major.minor.revision.build" becomes build metadata.
func ParseVersion(s string) (semver.Version, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 4)
	if len(parts) == 4 {
		s = strings.Join(parts[:3], ".") + "+" + parts[3]
	}
	v, err := semver.ParseTolerant(s)
	if err != nil {
		return semver.Version{}, errors.Wrapf(err, "firmware version %q", s)
	}
	return v, nil
}

// Newer reports whether candidate is a newer release than current.
func Newer(current, candidate semver.Version) bool {
	return candidate.GT(current)
}

// Upload sends a firmware image. The device checks it against the SHA-256
// sent with the first chunk.
func (m *ImageManager) Upload(ctx context.Context, image []byte, progress transfer.ProgressFunc) error {
	sum := sha256.Sum256(image)
	m.log.WithField("sha256", fmt.Sprintf("%x", sum[:8])).Info("uploading firmware image")
	return m.tr.Upload(ctx, image, transfer.UploadOptions{SHA: sum[:], Progress: progress})
}

// Busy reports whether an upload is running.
func (m *ImageManager) Busy() bool { return m.tr.Busy() }

// Reset abandons a running upload.
func (m *ImageManager) Reset() { m.tr.Reset() }
