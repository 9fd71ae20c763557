package transfer

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encoding is how chunk requests are put on the wire. Responses are CBOR
// either way.
type Encoding int

const (
	// CBOR sends requests as CBOR maps, as the mcumgr image group expects.
	CBOR Encoding = iota

	// Binary sends an upload chunk as <len u32><off u32><data> and a
	// download request as <off u32>, little endian. len is repeated in
	// every chunk. Hash and image number are not sent.
	Binary
)

const (
	binaryUploadHead   = 8
	binaryDownloadHead = 4
)

// EncodeBinaryUpload returns the Binary form of one upload chunk of a
// payload of total bytes.
func EncodeBinaryUpload(total, off int, data []byte) []byte {
	b := make([]byte, binaryUploadHead, binaryUploadHead+len(data))
	binary.LittleEndian.PutUint32(b, uint32(total))
	binary.LittleEndian.PutUint32(b[4:], uint32(off))
	return append(b, data...)
}

// DecodeBinaryUpload parses a Binary upload chunk. Len is always set.
func DecodeBinaryUpload(b []byte) (*UploadRequest, error) {
	if len(b) < binaryUploadHead {
		return nil, errors.Errorf("transfer: upload chunk of %d bytes", len(b))
	}
	total := int(binary.LittleEndian.Uint32(b))
	return &UploadRequest{
		Len:  &total,
		Off:  int(binary.LittleEndian.Uint32(b[4:])),
		Data: b[binaryUploadHead:],
	}, nil
}

// EncodeBinaryDownload returns the Binary form of a download request.
func EncodeBinaryDownload(off int) []byte {
	b := make([]byte, binaryDownloadHead)
	binary.LittleEndian.PutUint32(b, uint32(off))
	return b
}

// DecodeBinaryDownload parses a Binary download request.
func DecodeBinaryDownload(b []byte) (*DownloadRequest, error) {
	if len(b) != binaryDownloadHead {
		return nil, errors.Errorf("transfer: download request of %d bytes", len(b))
	}
	return &DownloadRequest{Off: int(binary.LittleEndian.Uint32(b))}, nil
}
