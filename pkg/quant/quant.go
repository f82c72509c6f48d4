// Package quant assigns codebook indices to dense weights, producing the
// codes, codebooks, and scales layout the matmul operations consume. It is a
// plain nearest-entry assignment with one least-squares scale fit per row,
// not a trainer: codebooks are taken as given.
package quant

import (
	"fmt"
	"math"

	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/tensor"
)

// Result is a quantized weight ready for the matmul driver or the acf writer.
type Result struct {
	Codes  *tensor.Tensor // (M, K/8, 1) u16
	Scales *tensor.Tensor // (M, 1, 1, 1) f32
}

// Encode1x16 quantizes a dense (M, K) weight against a 1x16 codebook of
// shape (1, 65536, 1, 8): every 8-wide sub-block gets the entry with minimal
// squared error, then each row gets the scale minimizing the residual.
func Encode1x16(dense, books *tensor.Tensor) (*Result, error) {
	return encode(dense, books, 1, kernels.Entries1x16)
}

// Encode2x8 quantizes against a (2, 256, 1, 8) codebook. Assignment is
// greedy: the best bank-0 entry first, then the best bank-1 entry for the
// residual.
func Encode2x8(dense, books *tensor.Tensor) (*Result, error) {
	return encode(dense, books, 2, kernels.Entries2x8)
}

func encode(dense, books *tensor.Tensor, banks, entries int) (*Result, error) {
	if !dense.DType.IsFloat() {
		return nil, fmt.Errorf("quant: dense dtype %s is not a float type", dense.DType)
	}
	if dense.Rank() != 2 {
		return nil, fmt.Errorf("quant: dense shape %v, want (M, K)", dense.Shape)
	}
	m, k := dense.Shape[0], dense.Shape[1]
	if k%kernels.SubBlock != 0 {
		return nil, fmt.Errorf("quant: K=%d is not a multiple of %d", k, kernels.SubBlock)
	}
	if books.Dim(0) != banks || books.Dim(1) != entries {
		return nil, fmt.Errorf("quant: codebook shape %v, want (%d, %d, ...)", books.Shape, banks, entries)
	}
	if n := books.NumEl(); n != banks*entries*kernels.SubBlock {
		return nil, fmt.Errorf("quant: codebook holds %d elements, want %d", n, banks*entries*kernels.SubBlock)
	}
	groups := k / kernels.SubBlock

	bookVals := make([]float32, books.NumEl())
	books.DecodeFloat32(bookVals)
	row := make([]float32, k)
	recon := make([]float32, k)

	codeVals := make([]uint16, m*groups)
	scaleVals := make([]float32, m)
	rowView := tensor.Tensor{DType: dense.DType, Shape: []int{k}}

	for mi := 0; mi < m; mi++ {
		rowView.Data = dense.RowBytes(mi)
		rowView.DecodeFloat32(row)

		for g := 0; g < groups; g++ {
			target := row[g*kernels.SubBlock : (g+1)*kernels.SubBlock]
			out := recon[g*kernels.SubBlock : (g+1)*kernels.SubBlock]
			if banks == 1 {
				e := nearestEntry(target, bookVals, entries)
				codeVals[mi*groups+g] = uint16(e)
				copy(out, bookVals[e*kernels.SubBlock:(e+1)*kernels.SubBlock])
				continue
			}

			lo := nearestEntry(target, bookVals[:entries*kernels.SubBlock], entries)
			var residual [kernels.SubBlock]float32
			for t := range residual {
				residual[t] = target[t] - bookVals[lo*kernels.SubBlock+t]
			}
			hi := nearestEntry(residual[:], bookVals[entries*kernels.SubBlock:], entries)
			codeVals[mi*groups+g] = uint16(lo) | uint16(hi)<<8
			for t := range out {
				out[t] = bookVals[lo*kernels.SubBlock+t] + bookVals[(entries+hi)*kernels.SubBlock+t]
			}
		}

		scaleVals[mi] = fitScale(row, recon)
	}

	return &Result{
		Codes:  tensor.FromUint16([]int{m, groups, 1}, codeVals),
		Scales: tensor.FromFloat32(tensor.F32, []int{m, 1, 1, 1}, scaleVals),
	}, nil
}

// nearestEntry returns the index of the entry minimizing squared error
// against target.
func nearestEntry(target []float32, entries []float32, n int) int {
	best := 0
	bestErr := math.Inf(1)
	for e := 0; e < n; e++ {
		ent := entries[e*kernels.SubBlock : (e+1)*kernels.SubBlock]
		var se float64
		for t := 0; t < kernels.SubBlock; t++ {
			d := float64(target[t] - ent[t])
			se += d * d
		}
		if se < bestErr {
			bestErr = se
			best = e
		}
	}
	return best
}

// fitScale returns the least-squares scale s minimizing |row - s*recon|.
// A zero reconstruction gets scale 1 so the stored weight stays zero.
func fitScale(row, recon []float32) float32 {
	var num, den float64
	for i := range row {
		num += float64(row[i]) * float64(recon[i])
		den += float64(recon[i]) * float64(recon[i])
	}
	if den == 0 {
		return 1
	}
	return float32(num / den)
}
