// Package cpu runs the quantized matvec kernels on the host.
package cpu

import "github.com/samcharles93/aqlm/internal/kernels"

type Ops struct{}

func New() *Ops {
	return &Ops{}
}

func (o *Ops) Name() string {
	return "cpu"
}

func (o *Ops) Code1x16MatVec(dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error {
	kernels.Code1x16MatVec(dst, codes, x, cb)
	return nil
}

func (o *Ops) Code2x8MatVec(dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error {
	kernels.Code2x8MatVec(dst, codes, x, cb)
	return nil
}

func (o *Ops) Close() error {
	return nil
}
