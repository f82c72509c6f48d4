//go:build cuda

package backend

import (
	"github.com/samcharles93/aqlm/internal/backend/cpu"
	"github.com/samcharles93/aqlm/internal/backend/cuda"
)

const cudaEnabled = true

func newCPU() (Ops, error) {
	return cpu.New(), nil
}

func newCUDA() (Ops, error) {
	return cuda.New()
}
