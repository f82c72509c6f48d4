package kernels

import (
	"fmt"
	"sync"

	"github.com/samcharles93/aqlm/internal/tensor"
)

const (
	// SubBlock is the granule along the reduction axis addressed by one code.
	SubBlock = 8

	// Entries1x16 is the codebook size of the 1x16 scheme (one 16-bit index).
	Entries1x16 = 1 << 16
	// Entries2x8 is the per-bank codebook size of the 2x8 scheme.
	Entries2x8 = 1 << 8
)

// Codebook holds the learned 8-wide entries of one quantization scheme in a
// form the matvec kernels can index directly. For 16-bit element types the
// raw bit patterns are kept and decoded inline through the dtype table; the
// 2x8 scheme additionally stages its two small banks as float32 once per
// codebook so the inner loop never touches the encoded form.
type Codebook struct {
	DType   tensor.DType
	Banks   int
	Entries int

	raw []uint16  // F16/BF16 bit patterns, banks*entries*8
	f32 []float32 // F32 values, banks*entries*8
	tbl *[1 << 16]float32

	stageOnce sync.Once
	staged    []float32
}

// NewCodebook wraps a codebooks tensor of logical shape
// (banks, entries, 1, 8) or (banks, entries, 8).
func NewCodebook(t *tensor.Tensor) (*Codebook, error) {
	if !t.DType.IsFloat() {
		return nil, fmt.Errorf("kernels: codebook dtype %s is not a float type", t.DType)
	}
	if len(t.Shape) < 2 {
		return nil, fmt.Errorf("kernels: codebook shape %v wants at least (banks, entries, ...)", t.Shape)
	}
	banks := t.Shape[0]
	entries := t.Shape[1]
	if n := t.NumEl(); n != banks*entries*SubBlock {
		return nil, fmt.Errorf("kernels: codebook shape %v holds %d elements, want %d", t.Shape, n, banks*entries*SubBlock)
	}
	cb := &Codebook{
		DType:   t.DType,
		Banks:   banks,
		Entries: entries,
	}
	if t.DType == tensor.F32 {
		cb.f32 = t.Float32s()
	} else {
		cb.raw = t.Uint16s()
		cb.tbl = t.DType.DecodeTable()
	}
	return cb, nil
}

// stage decodes all banks to float32 scratch. Only the 2x8 path uses it; its
// two 256-entry banks total 4 KB of float32 and stay resident in L1 while
// rows stream, the host analog of staging the codebook in shared memory.
func (cb *Codebook) stage() []float32 {
	if cb.f32 != nil {
		return cb.f32
	}
	cb.stageOnce.Do(func() {
		cb.staged = make([]float32, len(cb.raw))
		tbl := cb.tbl
		for i, u := range cb.raw {
			cb.staged[i] = tbl[u]
		}
	})
	return cb.staged
}

// bank returns the staged float32 entries of one bank.
func (cb *Codebook) bank(i int) []float32 {
	all := cb.stage()
	n := cb.Entries * SubBlock
	return all[i*n : (i+1)*n]
}

// RawBits exposes the 16-bit storage patterns, or nil when the codebook
// element type is float32. Device backends upload these directly.
func (cb *Codebook) RawBits() []uint16 { return cb.raw }

// Float32s exposes all bank entries decoded to float32.
func (cb *Codebook) Float32s() []float32 { return cb.stage() }
