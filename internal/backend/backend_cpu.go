//go:build !cuda

package backend

import (
	"errors"

	"github.com/samcharles93/aqlm/internal/backend/cpu"
)

const cudaEnabled = false

var errCUDAUnavailable = errors.New("cuda backend not implemented in this build")

func newCPU() (Ops, error) {
	return cpu.New(), nil
}

func newCUDA() (Ops, error) {
	return nil, errCUDAUnavailable
}
