// Package mgmttest simulates the management groups of a device on top of
// smptest.
package mgmttest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavyindustries/gatt"
	"github.com/wavyindustries/gatt/gatttest"
	"github.com/wavyindustries/gatt/mgmt"
	"github.com/wavyindustries/gatt/samples"
	"github.com/wavyindustries/gatt/smp"
	"github.com/wavyindustries/gatt/smp/smptest"
	"github.com/wavyindustries/gatt/transfer"
)

type status struct {
	Rc int `cbor:"rc"`
}

var okStatus = status{}

// Device holds sample storage, a sample mode and firmware slots, and
// answers the mgmt commands for them.
type Device struct {
	srv *smptest.Server

	mu        sync.Mutex
	stored    []byte
	pending   []byte
	pendLen   int
	total     int
	mode      int
	chunk     int
	uploads   int
	tamper    func([]byte) []byte
	images    []mgmt.Image
	firmware  []byte
	fwPending []byte
	fwLen     int
	fwSHA     []byte
	polls     int
}

// New adds an SMP server to p and installs the mgmt handlers.
func New(p *gatttest.Peripheral) *Device {
	d := &Device{
		srv:   smptest.New(p),
		total: 64 * 1024,
		chunk: 128,
		images: []mgmt.Image{
			{Slot: 0, Version: "1.2.3", Active: true, Confirmed: true, Bootable: true},
		},
	}
	d.srv.Handle(mgmt.GroupSamples, mgmt.CmdSampleIDs, d.ids)
	d.srv.Handle(mgmt.GroupSamples, mgmt.CmdSampleData, d.data)
	d.srv.Handle(mgmt.GroupSamples, mgmt.CmdSampleIsSet, d.isSet)
	d.srv.Handle(mgmt.GroupSamples, mgmt.CmdSampleSpaceUsed, d.space)
	d.srv.Handle(mgmt.GroupSamples, mgmt.CmdSampleMode, d.sampleMode)
	d.srv.Handle(mgmt.GroupImage, mgmt.CmdImageState, d.imageState)
	d.srv.Handle(mgmt.GroupImage, mgmt.CmdImageUpload, d.imageUpload)
	d.srv.Handle(mgmt.GroupBasic, mgmt.CmdBasicPoll, d.poll)
	return d
}

// Server returns the underlying SMP server.
func (d *Device) Server() *smptest.Server { return d.srv }

// Close stops answering.
func (d *Device) Close() { d.srv.Close() }

// SetSamples replaces the stored samples. nil means unset.
func (d *Device) SetSamples(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stored = append([]byte(nil), b...)
	if b == nil {
		d.stored = nil
	}
}

// Stored returns the stored samples.
func (d *Device) Stored() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.stored...)
}

// SetTotal sets the storage size.
func (d *Device) SetTotal(n int) {
	d.mu.Lock()
	d.total = n
	d.mu.Unlock()
}

// SetChunk sets the download chunk size.
func (d *Device) SetChunk(n int) {
	d.mu.Lock()
	d.chunk = n
	d.mu.Unlock()
}

// Tamper makes downloads return f(stored) instead of the stored bytes.
func (d *Device) Tamper(f func([]byte) []byte) {
	d.mu.Lock()
	d.tamper = f
	d.mu.Unlock()
}

// Uploads returns the number of completed sample uploads.
func (d *Device) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

// SetImages replaces the firmware slots.
func (d *Device) SetImages(images ...mgmt.Image) {
	d.mu.Lock()
	d.images = images
	d.mu.Unlock()
}

// Firmware returns the last completely uploaded image and whether its
// hash matched.
func (d *Device) Firmware() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sum := sha256.Sum256(d.firmware)
	return d.firmware, d.firmware != nil && bytes.Equal(sum[:], d.fwSHA)
}

// Mode returns the sample mode.
func (d *Device) Mode() mgmt.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return mgmt.Mode(d.mode)
}

// Polls returns how often the device was polled.
func (d *Device) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

func (d *Device) ids(op smp.Op, _ []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	words := make([]uint32, 0, 2*samples.NumPages)
	var ds *samples.DeviceSamples
	if d.stored != nil {
		ds, _ = samples.Decode(d.stored)
	}
	for i := 0; i < samples.NumPages; i++ {
		upper, lower := uint32(0xFFFFFFFF), uint32(0xFFFFFFFF)
		if ds != nil && ds.Pages[i] != nil {
			upper, lower, _ = samples.NameWords(ds.Pages[i].Name)
		}
		words = append(words, lower, upper)
	}
	return map[string][]uint32{"ids": words}
}

func (d *Device) isSet(op smp.Op, _ []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]bool{"set": d.stored != nil}
}

func (d *Device) space(op smp.Op, _ []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return mgmt.Space{Total: d.total, Used: len(d.stored)}
}

func (d *Device) sampleMode(op smp.Op, payload []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if op == smp.OpWrite {
		var m int
		if err := smptest.Decode(payload, &m); err != nil || m < 0 || m > 1 {
			return status{Rc: int(smp.RcInvalid)}
		}
		d.mode = m
		return okStatus
	}
	return map[string]int{"mode": d.mode}
}

func (d *Device) data(op smp.Op, payload []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if op == smp.OpWrite {
		req, err := transfer.DecodeBinaryUpload(payload)
		if err != nil {
			return status{Rc: int(smp.RcInvalid)}
		}
		if req.Off == 0 {
			if req.Len == nil {
				return status{Rc: int(smp.RcInvalid)}
			}
			if *req.Len > d.total {
				return status{Rc: int(smp.RcNoMem)}
			}
			d.pending, d.pendLen = nil, *req.Len
		}
		if req.Off == len(d.pending) {
			d.pending = append(d.pending, req.Data...)
		}
		off := len(d.pending)
		if d.pendLen > 0 && off == d.pendLen {
			d.stored = d.pending
			d.pending, d.pendLen = nil, 0
			d.uploads++
		}
		return transfer.UploadResponse{Off: off}
	}

	if d.stored == nil {
		return status{Rc: int(smp.RcNoEnt)}
	}
	req, err := transfer.DecodeBinaryDownload(payload)
	if err != nil {
		return status{Rc: int(smp.RcInvalid)}
	}
	src := d.stored
	if d.tamper != nil {
		src = d.tamper(append([]byte(nil), src...))
	}
	if req.Off > len(src) {
		return status{Rc: int(smp.RcInvalid)}
	}
	end := req.Off + d.chunk
	if end > len(src) {
		end = len(src)
	}
	rsp := transfer.DownloadResponse{Off: req.Off, Data: src[req.Off:end]}
	if req.Off == 0 {
		n := len(src)
		rsp.Len = &n
	}
	return rsp
}

func (d *Device) imageState(op smp.Op, _ []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return mgmt.ImageState{Images: d.images}
}

func (d *Device) imageUpload(op smp.Op, payload []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	var req transfer.UploadRequest
	if err := smptest.Decode(payload, &req); err != nil {
		return status{Rc: int(smp.RcInvalid)}
	}
	if req.Off == 0 {
		if req.Len == nil {
			return status{Rc: int(smp.RcInvalid)}
		}
		d.fwPending, d.fwLen, d.fwSHA = nil, *req.Len, req.Sha
	}
	if req.Off == len(d.fwPending) {
		d.fwPending = append(d.fwPending, req.Data...)
	}
	if len(d.fwPending) == d.fwLen {
		d.firmware = d.fwPending
	}
	return transfer.UploadResponse{Off: len(d.fwPending)}
}

func (d *Device) poll(op smp.Op, _ []byte) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls++
	return okStatus
}

// Connect brings up a Link to p and returns an SMP client on it. Both
// are closed when the test ends.
func Connect(t testing.TB, p *gatttest.Peripheral) (*gatt.Link, *smp.Client) {
	t.Helper()
	l, err := gatt.NewLink(gatttest.NewDevice(p),
		gatt.WithBackoff(gatt.Backoff{Base: time.Millisecond, Factor: 2, Max: 4 * time.Millisecond, Attempts: 5}))
	require.NoError(t, err)
	require.NoError(t, l.Connect(context.Background()))
	c := smp.NewClient(l.Channel(gatt.SMPServiceUUID, gatt.SMPCharUUID), smp.WithTimeout(2*time.Second))
	t.Cleanup(func() {
		c.Close(context.Background())
		l.Close(context.Background())
	})
	return l, c
}
