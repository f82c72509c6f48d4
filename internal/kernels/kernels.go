// Package kernels implements the additive-quantization matvec primitives.
// A weight row is never materialized: each 8-wide sub-block is reconstructed
// from codebook entries addressed by the row's codes and folded directly
// into the dot product. Accumulation is float32; callers cast stores to the
// element type of the surrounding call.
package kernels

import (
	"fmt"
	"sync/atomic"
)

var launchCount atomic.Uint64

// Launches reports the number of matvec kernel invocations since process
// start. Tests use it to assert that empty batches launch nothing; bench
// reports it as launches/sec.
func Launches() uint64 { return launchCount.Load() }

// CountLaunch records one kernel invocation. Device backends that bypass the
// host kernels call it so the counter stays meaningful across backends.
func CountLaunch() { launchCount.Add(1) }

// Code1x16MatVec computes dst[m] = sum_j dot(cb[codes[m,j]], x[8j:8j+8]) for
// every output row m. len(dst) is M, len(x) is K, and codes holds M*K/8
// indices row-major. Shape violations are programmer errors and panic.
func Code1x16MatVec(dst []float32, codes []uint16, x []float32, cb *Codebook) {
	kg := checkMatVec(dst, codes, x)
	if cb.Banks != 1 || cb.Entries != Entries1x16 {
		panic(fmt.Sprintf("kernels: 1x16 matvec with %dx%d codebook", cb.Banks, cb.Entries))
	}
	launchCount.Add(1)
	if len(dst) == 0 {
		return
	}
	getMatVecPool().run(code1x16Range, dst, codes, x, cb, len(dst), kg)
}

// Code2x8MatVec is Code1x16MatVec for the 2x8 scheme: the low byte of each
// code indexes bank 0, the high byte bank 1, and the decoded sub-block is
// the sum of the two entries.
func Code2x8MatVec(dst []float32, codes []uint16, x []float32, cb *Codebook) {
	kg := checkMatVec(dst, codes, x)
	if cb.Banks != 2 || cb.Entries != Entries2x8 {
		panic(fmt.Sprintf("kernels: 2x8 matvec with %dx%d codebook", cb.Banks, cb.Entries))
	}
	launchCount.Add(1)
	if len(dst) == 0 {
		return
	}
	getMatVecPool().run(code2x8Range, dst, codes, x, cb, len(dst), kg)
}

func checkMatVec(dst []float32, codes []uint16, x []float32) int {
	if len(x)%SubBlock != 0 {
		panic(fmt.Sprintf("kernels: K=%d is not a multiple of %d", len(x), SubBlock))
	}
	kg := len(x) / SubBlock
	if len(codes) < len(dst)*kg {
		panic(fmt.Sprintf("kernels: %d codes for M=%d K=%d", len(codes), len(dst), len(x)))
	}
	return kg
}
