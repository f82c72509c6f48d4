package acf

import (
	"fmt"
	"io"
	"os"

	"github.com/samcharles93/aqlm/internal/tensor"
)

// Weight is one quantized weight ready to be written. Codes is (M, K/8, 1)
// U16; Codebooks is (banks, entries, 1, 8) in E; Scales is (M, 1, 1, 1) in E.
type Weight struct {
	Scheme    Scheme
	Codes     *tensor.Tensor
	Codebooks *tensor.Tensor
	Scales    *tensor.Tensor
}

// Write serializes the weight to path, replacing any existing file.
func Write(path string, w Weight) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(f, w); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTo serializes the weight to out: a fixed header followed by the
// codes, codebooks, and scales sections, each 64-byte aligned.
func WriteTo(out io.Writer, w Weight) error {
	h, err := headerFor(w)
	if err != nil {
		return err
	}

	hdr := encodeHeader(h)
	if _, err := out.Write(hdr[:]); err != nil {
		return err
	}

	off := uint64(headerSize)
	sections := []struct {
		off  uint64
		data []byte
	}{
		{h.CodesOff, w.Codes.Data},
		{h.BooksOff, w.Codebooks.Data},
		{h.ScalesOff, w.Scales.Data},
	}
	for _, s := range sections {
		if err := writePadding(out, s.off-off); err != nil {
			return err
		}
		if _, err := out.Write(s.data); err != nil {
			return err
		}
		off = s.off + uint64(len(s.data))
	}
	return nil
}

func headerFor(w Weight) (Header, error) {
	if w.Codes == nil || w.Codebooks == nil || w.Scales == nil {
		return Header{}, fmt.Errorf("acf: missing tensor")
	}
	if w.Codes.DType != tensor.U16 {
		return Header{}, fmt.Errorf("acf: codes must be u16, got %v", w.Codes.DType)
	}
	dt, ok := dtypeCode(w.Codebooks.DType)
	if !ok {
		return Header{}, fmt.Errorf("acf: unsupported element type %v", w.Codebooks.DType)
	}
	if w.Scales.DType != w.Codebooks.DType {
		return Header{}, fmt.Errorf("acf: scales dtype %v does not match codebooks %v", w.Scales.DType, w.Codebooks.DType)
	}

	var banks int
	switch w.Scheme {
	case Scheme1x16:
		banks = 1
	case Scheme2x8:
		banks = 2
	default:
		return Header{}, fmt.Errorf("acf: unknown scheme %d", uint8(w.Scheme))
	}

	rows := w.Codes.Dim(0)
	groups := w.Codes.NumEl() / max(rows, 1)
	entries := w.Codebooks.Dim(1)
	if w.Codebooks.NumEl() != banks*entries*8 {
		return Header{}, fmt.Errorf("acf: codebooks have %d elements, want %d", w.Codebooks.NumEl(), banks*entries*8)
	}
	if w.Scales.NumEl() != rows {
		return Header{}, fmt.Errorf("acf: %d scales for %d rows", w.Scales.NumEl(), rows)
	}

	h := Header{
		Version: version,
		Scheme:  w.Scheme,
		DType:   dt,
		Rows:    uint32(rows),
		Cols:    uint32(groups * 8),
		Banks:   uint32(banks),
		Entries: uint32(entries),
	}
	h.CodesOff = alignUp(headerSize)
	h.CodesSize = uint64(len(w.Codes.Data))
	h.BooksOff = alignUp(h.CodesOff + h.CodesSize)
	h.BooksSize = uint64(len(w.Codebooks.Data))
	h.ScalesOff = alignUp(h.BooksOff + h.BooksSize)
	h.ScalesSize = uint64(len(w.Scales.Data))
	h.FileSize = h.ScalesOff + h.ScalesSize
	return h, nil
}

func writePadding(out io.Writer, n uint64) error {
	if n == 0 {
		return nil
	}
	var pad [align]byte
	for n > 0 {
		chunk := n
		if chunk > align {
			chunk = align
		}
		if _, err := out.Write(pad[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
