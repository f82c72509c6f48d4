package acf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/aqlm/internal/tensor"
)

// File is an opened container. Tensor accessors return views over the mapped
// data; they must not be retained after Close.
type File struct {
	Data    []byte
	Header  Header
	mmapped bool
}

// Open maps a container read-only and validates its structure. If mmap is
// unavailable, it falls back to ReadAt-based loading. The returned file must
// be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < headerSize || size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	// Prefer mmap where available for zero-copy tensor views.
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		af, parseErr := parseFileData(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return af, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

// OpenReaderAt loads and validates a container from a random-access reader
// without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	if size < headerSize || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != version {
		return nil, ErrUnsupportedVersion
	}
	if hdr.FileSize != uint64(len(data)) {
		return nil, ErrCorruptFile
	}
	if _, ok := dtypeOf(hdr.DType); !ok {
		return nil, fmt.Errorf("%w: dtype code %d", ErrCorruptFile, hdr.DType)
	}
	switch hdr.Scheme {
	case Scheme1x16, Scheme2x8:
	default:
		return nil, fmt.Errorf("%w: scheme code %d", ErrCorruptFile, uint8(hdr.Scheme))
	}
	if hdr.Cols%8 != 0 {
		return nil, fmt.Errorf("%w: K=%d not a multiple of 8", ErrCorruptFile, hdr.Cols)
	}

	sections := []struct {
		name      string
		off, size uint64
	}{
		{"codes", hdr.CodesOff, hdr.CodesSize},
		{"codebooks", hdr.BooksOff, hdr.BooksSize},
		{"scales", hdr.ScalesOff, hdr.ScalesSize},
	}
	for _, s := range sections {
		end := s.off + s.size
		if end < s.off || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s section out of bounds", ErrCorruptFile, s.name)
		}
		if s.off < headerSize {
			return nil, fmt.Errorf("%w: %s section overlaps header", ErrCorruptFile, s.name)
		}
		if s.off%align != 0 {
			return nil, fmt.Errorf("%w: %s section offset not %d-byte aligned", ErrCorruptFile, s.name, align)
		}
	}

	return &File{Data: data, Header: hdr, mmapped: mmapped}, nil
}

// Close releases file resources and any mmap backing.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.mmapped = false
	return err
}

// Scheme reports the stored quantization layout.
func (f *File) Scheme() Scheme { return f.Header.Scheme }

// ElemType reports the element type E of codebooks and scales.
func (f *File) ElemType() tensor.DType {
	dt, _ := dtypeOf(f.Header.DType)
	return dt
}

// Codes returns a (M, K/8, 1) view of the code indices.
func (f *File) Codes() *tensor.Tensor {
	h := f.Header
	return &tensor.Tensor{
		DType: tensor.U16,
		Shape: []int{int(h.Rows), int(h.Cols) / 8, 1},
		Data:  f.Data[h.CodesOff : h.CodesOff+h.CodesSize],
	}
}

// Codebooks returns a (banks, entries, 1, 8) view of the codebook entries.
func (f *File) Codebooks() *tensor.Tensor {
	h := f.Header
	return &tensor.Tensor{
		DType: f.ElemType(),
		Shape: []int{int(h.Banks), int(h.Entries), 1, 8},
		Data:  f.Data[h.BooksOff : h.BooksOff+h.BooksSize],
	}
}

// Scales returns a (M, 1, 1, 1) view of the per-row output scales.
func (f *File) Scales() *tensor.Tensor {
	h := f.Header
	return &tensor.Tensor{
		DType: f.ElemType(),
		Shape: []int{int(h.Rows), 1, 1, 1},
		Data:  f.Data[h.ScalesOff : h.ScalesOff+h.ScalesSize],
	}
}
