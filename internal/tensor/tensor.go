package tensor

import (
	"errors"
	"fmt"
)

var (
	ErrDTypeMismatch = errors.New("tensor: dtype mismatch")
	ErrShapeMismatch = errors.New("tensor: shape mismatch")
)

// Tensor is a contiguous row-major n-dimensional buffer. It is the narrow
// adapter over the host framework primitives the kernels need: reshape,
// views, row indexing, and elementwise broadcast multiply. The trailing axis
// varies fastest.
type Tensor struct {
	DType DType
	Shape []int
	Data  []byte
}

// New allocates a zeroed tensor of the given dtype and shape.
func New(dt DType, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic("tensor: negative dimension")
		}
		n *= d
	}
	return &Tensor{
		DType: dt,
		Shape: append([]int(nil), shape...),
		Data:  make([]byte, n*dt.ElemSize()),
	}
}

// FromFloat32 builds a tensor of dtype dt from float32 values, encoding
// each element. Intended for tests and tooling, not hot paths.
func FromFloat32(dt DType, shape []int, vals []float32) *Tensor {
	t := New(dt, shape...)
	if len(vals) != t.NumEl() {
		panic(fmt.Sprintf("tensor: %d values for shape %v", len(vals), shape))
	}
	t.EncodeFloat32(vals)
	return t
}

// FromUint16 builds a U16 tensor (code indices) from raw values.
func FromUint16(shape []int, vals []uint16) *Tensor {
	t := New(U16, shape...)
	if len(vals) != t.NumEl() {
		panic(fmt.Sprintf("tensor: %d values for shape %v", len(vals), shape))
	}
	for i, v := range vals {
		putU16le(t.Data, i*2, v)
	}
	return t
}

// NumEl returns the number of elements.
func (t *Tensor) NumEl() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the size of axis i; negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// WithShape returns a view over the same storage with a new shape. At most
// one dimension may be -1 and is inferred from the element count.
func (t *Tensor) WithShape(shape ...int) (*Tensor, error) {
	n := 1
	infer := -1
	for i, d := range shape {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("%w: multiple -1 dims in %v", ErrShapeMismatch, shape)
			}
			infer = i
		case d < 0:
			return nil, fmt.Errorf("%w: negative dim in %v", ErrShapeMismatch, shape)
		default:
			n *= d
		}
	}
	out := append([]int(nil), shape...)
	total := t.NumEl()
	if infer >= 0 {
		if n == 0 {
			if total != 0 {
				return nil, fmt.Errorf("%w: cannot infer -1 with zero-sized axes for %d elements", ErrShapeMismatch, total)
			}
			out[infer] = 0
		} else {
			if total%n != 0 {
				return nil, fmt.Errorf("%w: %d elements do not fit %v", ErrShapeMismatch, total, shape)
			}
			out[infer] = total / n
		}
		n *= out[infer]
	}
	if n != total {
		return nil, fmt.Errorf("%w: %d elements reshaped to %v", ErrShapeMismatch, total, shape)
	}
	return &Tensor{DType: t.DType, Shape: out, Data: t.Data}, nil
}

// Flatten2D views a (..., K) tensor as (B, K) where B is the product of the
// leading axes. Rank-1 input becomes (1, K).
func (t *Tensor) Flatten2D() *Tensor {
	k := t.Dim(-1)
	b := 1
	for _, d := range t.Shape[:len(t.Shape)-1] {
		b *= d
	}
	return &Tensor{DType: t.DType, Shape: []int{b, k}, Data: t.Data}
}

// Squeeze returns a view with the given unit axis removed.
func (t *Tensor) Squeeze(axis int) (*Tensor, error) {
	if axis < 0 {
		axis += len(t.Shape)
	}
	if axis < 0 || axis >= len(t.Shape) || t.Shape[axis] != 1 {
		return nil, fmt.Errorf("%w: squeeze axis %d of %v", ErrShapeMismatch, axis, t.Shape)
	}
	out := make([]int, 0, len(t.Shape)-1)
	out = append(out, t.Shape[:axis]...)
	out = append(out, t.Shape[axis+1:]...)
	return &Tensor{DType: t.DType, Shape: out, Data: t.Data}, nil
}

// RowBytes returns the backing bytes of row i of a rank-2 tensor.
func (t *Tensor) RowBytes(i int) []byte {
	if len(t.Shape) != 2 {
		panic("tensor: RowBytes on non-2D tensor")
	}
	rb := t.Shape[1] * t.DType.ElemSize()
	return t.Data[i*rb : (i+1)*rb]
}

// Uint16s returns a uint16 view of the storage. Falls back to a decoded copy
// on hosts where the zero-copy view is unavailable.
func (t *Tensor) Uint16s() []uint16 {
	if v, ok := rawUint16LE(t.Data); ok {
		return v
	}
	n := len(t.Data) / 2
	out := make([]uint16, n)
	for i := range out {
		out[i] = u16le(t.Data, i*2)
	}
	return out
}

// Float32s returns a float32 view of an F32 tensor's storage. Callers write
// through the view, so a fallback copy is not an option: storage that cannot
// be viewed (misaligned, or a big-endian host) panics.
func (t *Tensor) Float32s() []float32 {
	if t.DType != F32 {
		panic("tensor: Float32s on " + t.DType.String() + " tensor")
	}
	if len(t.Data) == 0 {
		return nil
	}
	v, ok := rawFloat32LE(t.Data)
	if !ok {
		panic("tensor: float32 storage not viewable on this host")
	}
	return v
}

// DecodeFloat32 decodes the whole buffer into dst, which must hold NumEl
// values.
func (t *Tensor) DecodeFloat32(dst []float32) {
	switch t.DType {
	case F32:
		copy(dst, t.Float32s())
	case F16, BF16:
		tbl := t.DType.DecodeTable()
		if u16raw, ok := rawUint16LE(t.Data); ok {
			for i, u := range u16raw[:len(dst)] {
				dst[i] = tbl[u]
			}
			return
		}
		for i := range dst {
			dst[i] = tbl[u16le(t.Data, i*2)]
		}
	default:
		panic("tensor: DecodeFloat32 on " + t.DType.String() + " tensor")
	}
}

// EncodeFloat32 encodes src into the buffer, which must hold len(src)
// elements.
func (t *Tensor) EncodeFloat32(src []float32) {
	switch t.DType {
	case F32:
		copy(t.Float32s(), src)
	case F16, BF16:
		for i, v := range src {
			putU16le(t.Data, i*2, EncodeFloat(t.DType, v))
		}
	default:
		panic("tensor: EncodeFloat32 on " + t.DType.String() + " tensor")
	}
}

// At decodes the element at flat index i to float32.
func (t *Tensor) At(i int) float32 {
	switch t.DType {
	case F32:
		return t.Float32s()[i]
	case F16:
		return fp16ToF32Table(u16le(t.Data, i*2))
	case BF16:
		return bf16ToF32Table(u16le(t.Data, i*2))
	default:
		panic("tensor: At on " + t.DType.String() + " tensor")
	}
}

// SetAt encodes v into the element at flat index i.
func (t *Tensor) SetAt(i int, v float32) {
	switch t.DType {
	case F32:
		t.Float32s()[i] = v
	case F16, BF16:
		putU16le(t.Data, i*2, EncodeFloat(t.DType, v))
	default:
		panic("tensor: SetAt on " + t.DType.String() + " tensor")
	}
}
