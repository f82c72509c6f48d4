// Package acf reads and writes the AQLM container format: a single
// quantized weight (codes, codebooks, scales) in one file, sections 64-byte
// aligned so readers can take zero-copy views straight off an mmap.
package acf

import (
	"encoding/binary"
	"errors"

	"github.com/samcharles93/aqlm/internal/tensor"
)

var (
	ErrInvalidMagic       = errors.New("acf: invalid magic")
	ErrUnsupportedVersion = errors.New("acf: unsupported version")
	ErrCorruptFile        = errors.New("acf: corrupt file")
)

const (
	magic      = "ACF1"
	version    = 1
	headerSize = 96
	align      = 64
)

// Scheme identifies the quantization layout of the stored weight.
type Scheme uint8

const (
	Scheme1x16 Scheme = 1
	Scheme2x8  Scheme = 2
)

func (s Scheme) String() string {
	switch s {
	case Scheme1x16:
		return "1x16"
	case Scheme2x8:
		return "2x8"
	default:
		return "unknown"
	}
}

// DType codes mirror the element encodings the kernels accept.
const (
	DTypeF32  uint8 = 0
	DTypeF16  uint8 = 1
	DTypeBF16 uint8 = 2
)

func dtypeOf(code uint8) (tensor.DType, bool) {
	switch code {
	case DTypeF32:
		return tensor.F32, true
	case DTypeF16:
		return tensor.F16, true
	case DTypeBF16:
		return tensor.BF16, true
	default:
		return 0, false
	}
}

func dtypeCode(dt tensor.DType) (uint8, bool) {
	switch dt {
	case tensor.F32:
		return DTypeF32, true
	case tensor.F16:
		return DTypeF16, true
	case tensor.BF16:
		return DTypeBF16, true
	default:
		return 0, false
	}
}

// Header is the fixed-size file prologue. All offsets are absolute.
type Header struct {
	Version uint16
	Scheme  Scheme
	DType   uint8
	Rows    uint32 // M, output features
	Cols    uint32 // K, reduction dimension
	Banks   uint32
	Entries uint32

	CodesOff   uint64
	CodesSize  uint64
	BooksOff   uint64
	BooksSize  uint64
	ScalesOff  uint64
	ScalesSize uint64
	FileSize   uint64
}

func decodeHeader(b []byte) (Header, bool) {
	if len(b) < headerSize || string(b[:4]) != magic {
		return Header{}, false
	}
	var h Header
	h.Version = binary.LittleEndian.Uint16(b[4:])
	h.Scheme = Scheme(b[6])
	h.DType = b[7]
	h.Rows = binary.LittleEndian.Uint32(b[8:])
	h.Cols = binary.LittleEndian.Uint32(b[12:])
	h.Banks = binary.LittleEndian.Uint32(b[16:])
	h.Entries = binary.LittleEndian.Uint32(b[20:])
	h.CodesOff = binary.LittleEndian.Uint64(b[24:])
	h.CodesSize = binary.LittleEndian.Uint64(b[32:])
	h.BooksOff = binary.LittleEndian.Uint64(b[40:])
	h.BooksSize = binary.LittleEndian.Uint64(b[48:])
	h.ScalesOff = binary.LittleEndian.Uint64(b[56:])
	h.ScalesSize = binary.LittleEndian.Uint64(b[64:])
	h.FileSize = binary.LittleEndian.Uint64(b[72:])
	return h, true
}

func encodeHeader(h Header) [headerSize]byte {
	var b [headerSize]byte
	copy(b[:4], magic)
	binary.LittleEndian.PutUint16(b[4:], h.Version)
	b[6] = byte(h.Scheme)
	b[7] = h.DType
	binary.LittleEndian.PutUint32(b[8:], h.Rows)
	binary.LittleEndian.PutUint32(b[12:], h.Cols)
	binary.LittleEndian.PutUint32(b[16:], h.Banks)
	binary.LittleEndian.PutUint32(b[20:], h.Entries)
	binary.LittleEndian.PutUint64(b[24:], h.CodesOff)
	binary.LittleEndian.PutUint64(b[32:], h.CodesSize)
	binary.LittleEndian.PutUint64(b[40:], h.BooksOff)
	binary.LittleEndian.PutUint64(b[48:], h.BooksSize)
	binary.LittleEndian.PutUint64(b[56:], h.ScalesOff)
	binary.LittleEndian.PutUint64(b[64:], h.ScalesSize)
	binary.LittleEndian.PutUint64(b[72:], h.FileSize)
	return b
}

func alignUp(off uint64) uint64 {
	return (off + align - 1) &^ (align - 1)
}
