// Package aqlm exposes the additive-quantization matmul primitives. Weights
// are held as codebook indices (codes) plus small learned codebooks; the
// four operations reconstruct the effective dense product without ever
// materializing the weight matrix.
//
// Two schemes are supported: 1x16 (one 65,536-entry codebook per 8-wide
// sub-block) and 2x8 (two 256-entry banks whose decoded entries are summed).
package aqlm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samcharles93/aqlm/internal/backend"
	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/tensor"
)

// Scheme names a quantization layout.
type Scheme string

const (
	Scheme1x16 Scheme = "1x16"
	Scheme2x8  Scheme = "2x8"
)

// ParseScheme canonicalizes a scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case Scheme1x16:
		return Scheme1x16, nil
	case Scheme2x8:
		return Scheme2x8, nil
	default:
		return "", fmt.Errorf("unknown scheme %q (expected 1x16 or 2x8)", s)
	}
}

// Engine binds the operations to one backend. Engines are safe for
// concurrent use provided the tensor arguments of concurrent calls do not
// alias.
type Engine struct {
	ops backend.Ops
}

// NewEngine constructs an engine on the named backend (auto, cpu, or cuda).
func NewEngine(backendName string) (*Engine, error) {
	ops, err := backend.New(backendName)
	if err != nil {
		return nil, err
	}
	return &Engine{ops: ops}, nil
}

// Backend reports the backend the engine resolved to.
func (e *Engine) Backend() string {
	return e.ops.Name()
}

// Close releases backend resources. The engine must not be used afterwards.
func (e *Engine) Close() error {
	return e.ops.Close()
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the shared auto-backend engine used by the package-level
// operations.
func Default() *Engine {
	defaultOnce.Do(func() {
		ops, err := backend.New(backend.Auto)
		if err != nil {
			// Auto always falls back to cpu; an error here is a build
			// misconfiguration worth dying loudly over.
			panic(fmt.Sprintf("aqlm: default backend init: %v", err))
		}
		defaultEngine = &Engine{ops: ops}
	})
	return defaultEngine
}

// Code1x16MatVec writes codes·input into the caller-supplied output vector
// using the 1x16 scheme on the default engine.
func Code1x16MatVec(codes, inputVec, outputVec, codebook *tensor.Tensor) error {
	return Default().Code1x16MatVec(codes, inputVec, outputVec, codebook)
}

// Code1x16MatMat applies the 1x16 quantized weight to a batched input on the
// default engine, allocating the output.
func Code1x16MatMat(input, codes, codebooks, scales *tensor.Tensor) (*tensor.Tensor, error) {
	return Default().Code1x16MatMat(input, codes, codebooks, scales)
}

// Code2x8MatVec is Code1x16MatVec for the 2x8 scheme.
func Code2x8MatVec(codes, inputVec, outputVec, codebook *tensor.Tensor) error {
	return Default().Code2x8MatVec(codes, inputVec, outputVec, codebook)
}

// Code2x8MatMat is Code1x16MatMat for the 2x8 scheme.
func Code2x8MatMat(input, codes, codebooks, scales *tensor.Tensor) (*tensor.Tensor, error) {
	return Default().Code2x8MatMat(input, codes, codebooks, scales)
}

func (e *Engine) dispatch(s Scheme, dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error {
	switch s {
	case Scheme1x16:
		return e.ops.Code1x16MatVec(dst, codes, x, cb)
	case Scheme2x8:
		return e.ops.Code2x8MatVec(dst, codes, x, cb)
	default:
		return fmt.Errorf("aqlm: unknown scheme %q", s)
	}
}
