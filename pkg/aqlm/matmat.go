package aqlm

import (
	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/tensor"
)

// Code1x16MatMat applies the quantized weight to a batched input: the result
// has the input's shape with the trailing axis replaced by the number of
// output features, same dtype. The batch is flattened to (B, K) and driven
// as one matvec per row; per-row scales are applied after accumulation.
func (e *Engine) Code1x16MatMat(input, codes, codebooks, scales *tensor.Tensor) (*tensor.Tensor, error) {
	return e.matMat(Scheme1x16, input, codes, codebooks, scales)
}

// Code2x8MatMat is Code1x16MatMat for the 2x8 scheme.
func (e *Engine) Code2x8MatMat(input, codes, codebooks, scales *tensor.Tensor) (*tensor.Tensor, error) {
	return e.matMat(Scheme2x8, input, codes, codebooks, scales)
}

func (e *Engine) matMat(s Scheme, input, codes, codebooks, scales *tensor.Tensor) (*tensor.Tensor, error) {
	cb, err := kernels.NewCodebook(codebooks)
	if err != nil {
		return nil, err
	}

	outFeatures := codes.Dim(0)
	if codebooks.Rank() >= 3 {
		// Out-group axis of the container format; 1 for both current schemes.
		outFeatures *= codebooks.Dim(2)
	}

	flat := input.Flatten2D()
	b, k := flat.Shape[0], flat.Shape[1]
	flatOut := tensor.New(input.DType, b, outFeatures)

	if b > 0 {
		codeBits := codes.Uint16s()

		// Scratch reused across rows; the f32 fast path views the storage
		// directly and skips the copies entirely.
		var xbuf, ybuf []float32
		if input.DType != tensor.F32 {
			xbuf = make([]float32, k)
		}
		if flatOut.DType != tensor.F32 {
			ybuf = make([]float32, outFeatures)
		}

		for i := 0; i < b; i++ {
			var x []float32
			if input.DType == tensor.F32 {
				x = flat.Float32s()[i*k : (i+1)*k]
			} else {
				row := tensor.Tensor{DType: flat.DType, Shape: []int{k}, Data: flat.RowBytes(i)}
				row.DecodeFloat32(xbuf)
				x = xbuf
			}

			var dst []float32
			if flatOut.DType == tensor.F32 {
				dst = flatOut.Float32s()[i*outFeatures : (i+1)*outFeatures]
			} else {
				dst = ybuf
			}

			if err := e.dispatch(s, dst, codeBits, x, cb); err != nil {
				return nil, err
			}

			if flatOut.DType != tensor.F32 {
				row := tensor.Tensor{DType: flatOut.DType, Shape: []int{outFeatures}, Data: flatOut.RowBytes(i)}
				row.EncodeFloat32(dst)
			}
		}
	}

	if err := tensor.ScaleRows(flatOut, scales); err != nil {
		return nil, err
	}

	outShape := make([]int, 0, input.Rank())
	outShape = append(outShape, input.Shape[:input.Rank()-1]...)
	outShape = append(outShape, outFeatures)
	return flatOut.WithShape(outShape...)
}
