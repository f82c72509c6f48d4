package aqlm

import (
	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/tensor"
)

// Code1x16MatVec computes one output vector: outputVec[m] is the dot product
// of input with weight row m reconstructed from (codes, codebook). M is
// taken from outputVec and K from inputVec; callers own shape and dtype
// consistency.
func (e *Engine) Code1x16MatVec(codes, inputVec, outputVec, codebook *tensor.Tensor) error {
	return e.matVec(Scheme1x16, codes, inputVec, outputVec, codebook)
}

// Code2x8MatVec is Code1x16MatVec for the 2x8 scheme.
func (e *Engine) Code2x8MatVec(codes, inputVec, outputVec, codebook *tensor.Tensor) error {
	return e.matVec(Scheme2x8, codes, inputVec, outputVec, codebook)
}

func (e *Engine) matVec(s Scheme, codes, inputVec, outputVec, codebook *tensor.Tensor) error {
	cb, err := kernels.NewCodebook(codebook)
	if err != nil {
		return err
	}

	k := inputVec.NumEl()
	m := outputVec.NumEl()

	var x []float32
	if inputVec.DType == tensor.F32 {
		x = inputVec.Float32s()[:k]
	} else {
		x = make([]float32, k)
		inputVec.DecodeFloat32(x)
	}

	var dst []float32
	if outputVec.DType == tensor.F32 {
		dst = outputVec.Float32s()[:m]
	} else {
		dst = make([]float32, m)
	}

	if err := e.dispatch(s, dst, codes.Uint16s(), x, cb); err != nil {
		return err
	}

	if outputVec.DType != tensor.F32 {
		outputVec.EncodeFloat32(dst)
	}
	return nil
}
