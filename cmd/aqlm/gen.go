package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/aqlm/internal/tensor"
	"github.com/samcharles93/aqlm/pkg/aqlm"
)

// randomWeight builds a synthetic quantized weight for benching and self
// tests: codes (m, k/8, 1), codebooks (banks, entries, 1, 8), scales
// (m, 1, 1, 1). Codebook entries stay small so accumulations remain well
// inside f32 range at any benchable size.
func randomWeight(rng *rand.Rand, scheme aqlm.Scheme, m, k int) (codes, books, scales *tensor.Tensor, err error) {
	if k%8 != 0 {
		return nil, nil, nil, fmt.Errorf("cols %d is not a multiple of 8", k)
	}

	banks, entries := 1, 1<<16
	if scheme == aqlm.Scheme2x8 {
		banks, entries = 2, 1<<8
	}

	codeVals := make([]uint16, m*k/8)
	for i := range codeVals {
		codeVals[i] = uint16(rng.UintN(1 << 16))
	}
	bookVals := make([]float32, banks*entries*8)
	for i := range bookVals {
		bookVals[i] = rng.Float32()*2 - 1
	}
	scaleVals := make([]float32, m)
	for i := range scaleVals {
		scaleVals[i] = rng.Float32() + 0.5
	}

	codes = tensor.FromUint16([]int{m, k / 8, 1}, codeVals)
	books = tensor.FromFloat32(tensor.F32, []int{banks, entries, 1, 8}, bookVals)
	scales = tensor.FromFloat32(tensor.F32, []int{m, 1, 1, 1}, scaleVals)
	return codes, books, scales, nil
}

func randomInput(rng *rand.Rand, b, k int) *tensor.Tensor {
	vals := make([]float32, b*k)
	for i := range vals {
		vals[i] = rng.Float32()*2 - 1
	}
	return tensor.FromFloat32(tensor.F32, []int{b, k}, vals)
}

// denseReference materializes the dense weight row by row and computes the
// scaled product directly. Slow, used only to validate the fused kernels.
func denseReference(scheme aqlm.Scheme, input, codes, books, scales *tensor.Tensor) []float32 {
	flat := input.Flatten2D()
	b, k := flat.Shape[0], flat.Shape[1]
	m := codes.Dim(0)
	groups := k / 8

	codeVals := codes.Uint16s()
	bookVals := make([]float32, books.NumEl())
	books.DecodeFloat32(bookVals)
	entries := books.Dim(1)

	x := make([]float32, b*k)
	flat.DecodeFloat32(x)

	row := make([]float32, k)
	out := make([]float32, b*m)
	for mi := 0; mi < m; mi++ {
		for g := 0; g < groups; g++ {
			code := codeVals[mi*groups+g]
			for t := 0; t < 8; t++ {
				row[g*8+t] = 0
			}
			if scheme == aqlm.Scheme1x16 {
				e := bookVals[int(code)*8 : int(code)*8+8]
				copy(row[g*8:g*8+8], e)
			} else {
				lo := bookVals[int(code&0xff)*8 : int(code&0xff)*8+8]
				hi := bookVals[entries*8+int(code>>8)*8 : entries*8+int(code>>8)*8+8]
				for t := 0; t < 8; t++ {
					row[g*8+t] = lo[t] + hi[t]
				}
			}
		}
		scale := scales.At(mi)
		for bi := 0; bi < b; bi++ {
			var acc float32
			for t := 0; t < k; t++ {
				acc += x[bi*k+t] * row[t]
			}
			out[bi*m+mi] = acc * scale
		}
	}
	return out
}
