package backend

import (
	"fmt"
	"strings"

	"github.com/samcharles93/aqlm/internal/kernels"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
	Auto = "auto"
)

// Ops is the set of quantized matvec entry points a backend provides. The
// slices are host views in float32; backends that compute elsewhere own the
// conversion and transfer.
type Ops interface {
	Name() string
	Code1x16MatVec(dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error
	Code2x8MatVec(dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error
	Close() error
}

// Normalize canonicalizes a backend name, defaulting empty to auto.
func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case CPU, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, or cuda)", backend)
	}
}

// New constructs the named backend. Auto prefers cuda when the build carries
// it and a device answers, falling back to cpu.
func New(name string) (Ops, error) {
	backend, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch backend {
	case CPU:
		return newCPU()
	case CUDA:
		return newCUDA()
	default:
		if cudaEnabled {
			if ops, err := newCUDA(); err == nil {
				return ops, nil
			}
		}
		return newCPU()
	}
}
