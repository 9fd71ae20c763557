// Package transfer moves large payloads to and from an SMP device as a
// series of offset addressed chunks.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wavyindustries/gatt/smp"
)

// Exchanger runs one SMP request/response. *smp.Client implements it.
type Exchanger interface {
	Send(ctx context.Context, op smp.Op, group smp.Group, id uint8, req, rsp interface{}) error
	MaxPayload() int
	Metrics() *smp.Metrics
}

// State is what a Transfer is doing.
type State int

const (
	Idle State = iota
	Uploading
	Downloading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Downloading:
		return "downloading"
	}
	return "unknown"
}

// ProgressFunc receives the completed percentage, 0 to 100.
type ProgressFunc func(percent int)

// UploadRequest is one upload chunk. Len, Sha and Image are only sent
// with the chunk at offset 0.
type UploadRequest struct {
	Image *int   `cbor:"image,omitempty"`
	Len   *int   `cbor:"len,omitempty"`
	Off   int    `cbor:"off"`
	Sha   []byte `cbor:"sha,omitempty"`
	Data  []byte `cbor:"data"`
}

// UploadResponse carries the offset the device expects next.
type UploadResponse struct {
	Off   int   `cbor:"off"`
	Match *bool `cbor:"match,omitempty"`
}

// DownloadRequest asks for data starting at Off.
type DownloadRequest struct {
	Off int `cbor:"off"`
}

// DownloadResponse is one download chunk. Len is only present in the
// first response.
type DownloadResponse struct {
	Len  *int   `cbor:"len,omitempty"`
	Off  int    `cbor:"off"`
	Data []byte `cbor:"data"`
}

// UploadOptions are the optional parts of an upload.
type UploadOptions struct {
	SHA      []byte // hash of the whole payload, sent with the first chunk
	Image    *int   // target image number, sent with the first chunk
	Progress ProgressFunc
}

var errReset = errors.New("transfer was reset")

// A Transfer runs uploads and downloads against one SMP command. Only one
// of them may run at a time.
type Transfer struct {
	x            Exchanger
	group        smp.Group
	id           uint8
	log          logrus.FieldLogger
	overhead     int
	chunkTimeout time.Duration
	maxStalls    int
	maxDownload  int
	encoding     Encoding

	mu     sync.Mutex
	state  State
	run    uint64
	cancel context.CancelFunc
	idle   chan struct{}
}

// New returns an idle Transfer for the given group and command.
func New(x Exchanger, group smp.Group, id uint8, opts ...Option) *Transfer {
	t := &Transfer{
		x:            x,
		group:        group,
		id:           id,
		log:          logrus.StandardLogger().WithField("module", "transfer"),
		overhead:     DefaultOverhead,
		chunkTimeout: DefaultChunkTimeout,
		maxStalls:    DefaultMaxStalls,
		maxDownload:  DefaultMaxDownload,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns what the transfer is doing.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Busy reports whether a transfer is running.
func (t *Transfer) Busy() bool { return t.State() != Idle }

// Wait blocks until no transfer is running.
func (t *Transfer) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forces the transfer back to idle. A running loop is cancelled
// and returns ErrTransferAborted; waiters are released.
func (t *Transfer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Idle {
		return
	}
	t.log.WithField("state", t.state).Warn("transfer reset")
	t.run++
	if t.cancel != nil {
		t.cancel()
	}
	t.settleLocked()
}

func (t *Transfer) settleLocked() {
	t.state = Idle
	t.cancel = nil
	if t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

func (t *Transfer) begin(ctx context.Context, s State) (context.Context, uint64, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return nil, 0, nil, errors.Wrapf(ErrTransferBusy, "%s", t.state)
	}
	t.state = s
	t.run++
	run := t.run
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.idle = make(chan struct{})

	finish := func() {
		cancel()
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.run == run {
			t.settleLocked()
		}
	}
	return ctx, run, finish, nil
}

func (t *Transfer) current(run uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run == run
}

func (t *Transfer) abort(run uint64, dir string, off int, err error) error {
	if !t.current(run) {
		err = errReset
	}
	t.log.WithFields(logrus.Fields{"direction": dir, "off": off}).WithError(err).Error("transfer aborted")
	return &AbortError{Direction: dir, Offset: off, Err: err}
}

func (t *Transfer) exchange(ctx context.Context, op smp.Op, req, rsp interface{}) error {
	if t.chunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.chunkTimeout)
		defer cancel()
	}
	return t.x.Send(ctx, op, t.group, t.id, req, rsp)
}

// Upload sends data in chunks. After every chunk the offset reported by
// the device becomes the new cursor, so a partially accepted chunk is
// simply sent again from where the device left off.
func (t *Transfer) Upload(ctx context.Context, data []byte, opts UploadOptions) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	ctx, run, finish, err := t.begin(ctx, Uploading)
	if err != nil {
		return err
	}
	defer finish()

	total := len(data)
	log := t.log.WithFields(logrus.Fields{"group": t.group, "id": t.id, "len": total})
	log.Info("upload started")

	off, stalls := 0, 0
	for off < total {
		req := UploadRequest{Off: off, Data: []byte{}}
		if off == 0 {
			req.Len = &total
			req.Sha = opts.SHA
			req.Image = opts.Image
		}
		n, err := t.chunkSize(&req, total-off)
		if err != nil {
			return t.abort(run, "upload", off, err)
		}
		req.Data = data[off : off+n]

		var rsp UploadResponse
		if err := t.exchange(ctx, smp.OpWrite, t.uploadBody(&req, total), &rsp); err != nil {
			return t.abort(run, "upload", off, err)
		}
		if !t.current(run) {
			return t.abort(run, "upload", off, errReset)
		}
		switch {
		case rsp.Off < off || rsp.Off > total:
			return t.abort(run, "upload", off, errors.Errorf("device reported offset %d", rsp.Off))
		case rsp.Off == off:
			stalls++
			log.WithField("off", off).Debug("chunk not accepted")
			if stalls > t.maxStalls {
				return t.abort(run, "upload", off, errors.Errorf("no progress after %d chunks", stalls))
			}
		default:
			stalls = 0
			t.x.Metrics().Transferred("upload", rsp.Off-off)
		}
		off = rsp.Off
		report(opts.Progress, off, total)
	}
	log.Info("upload finished")
	return nil
}

// Download reads the whole payload. The first response announces the
// total length.
func (t *Transfer) Download(ctx context.Context, progress ProgressFunc) ([]byte, error) {
	ctx, run, finish, err := t.begin(ctx, Downloading)
	if err != nil {
		return nil, err
	}
	defer finish()

	log := t.log.WithFields(logrus.Fields{"group": t.group, "id": t.id})
	log.Info("download started")

	var buf []byte
	total, off, stalls := -1, 0, 0
	for total < 0 || off < total {
		var rsp DownloadResponse
		if err := t.exchange(ctx, smp.OpRead, t.downloadBody(off), &rsp); err != nil {
			return nil, t.abort(run, "download", off, err)
		}
		if !t.current(run) {
			return nil, t.abort(run, "download", off, errReset)
		}
		if total < 0 {
			switch {
			case rsp.Len == nil:
				return nil, t.abort(run, "download", off, errors.New("first response carries no length"))
			case rsp.Off != 0:
				return nil, t.abort(run, "download", off, errors.Errorf("first response at offset %d", rsp.Off))
			case *rsp.Len < 0 || *rsp.Len > t.maxDownload:
				return nil, t.abort(run, "download", off, errors.Errorf("bad length %d", *rsp.Len))
			}
			total = *rsp.Len
			buf = make([]byte, total)
			log = log.WithField("len", total)
		}
		end := rsp.Off + len(rsp.Data)
		if rsp.Off < 0 || rsp.Off > off || end > total {
			return nil, t.abort(run, "download", off, errors.Errorf("chunk %d..%d outside 0..%d", rsp.Off, end, total))
		}
		copy(buf[rsp.Off:end], rsp.Data)
		if end > off {
			t.x.Metrics().Transferred("download", end-off)
			off = end
			stalls = 0
		} else if total > 0 {
			stalls++
			if stalls > t.maxStalls {
				return nil, t.abort(run, "download", off, errors.Errorf("no progress after %d chunks", stalls))
			}
		}
		report(progress, off, total)
	}
	log.Info("download finished")
	return buf, nil
}

func (t *Transfer) uploadBody(req *UploadRequest, total int) interface{} {
	if t.encoding == Binary {
		return smp.Raw(EncodeBinaryUpload(total, req.Off, req.Data))
	}
	return req
}

func (t *Transfer) downloadBody(off int) interface{} {
	if t.encoding == Binary {
		return smp.Raw(EncodeBinaryDownload(off))
	}
	return &DownloadRequest{Off: off}
}

// chunkSize returns how many data bytes fit into req.
func (t *Transfer) chunkSize(req *UploadRequest, remaining int) (int, error) {
	env := binaryUploadHead
	if t.encoding != Binary {
		b, err := cbor.Marshal(req)
		if err != nil {
			return 0, errors.Wrap(err, "encode chunk")
		}
		env = len(b)
	}
	budget := t.x.MaxPayload() - smp.HeaderSize - env - t.overhead
	n := budget
	if t.encoding != Binary {
		// The empty data string already has a one byte head.
		for n > 0 && n+byteStringHead(n)-1 > budget {
			n--
		}
	}
	if n <= 0 {
		return 0, errors.Errorf("no room for data: max payload %d, envelope %d, overhead %d",
			t.x.MaxPayload(), env, t.overhead)
	}
	if n > remaining {
		n = remaining
	}
	return n, nil
}

func byteStringHead(n int) int {
	switch {
	case n < 24:
		return 1
	case n < 1<<8:
		return 2
	case n < 1<<16:
		return 3
	}
	return 5
}

func report(f ProgressFunc, off, total int) {
	if f == nil || total <= 0 {
		return
	}
	f(off * 100 / total)
}
