package api

import (
	"fmt"
	"strings"

	"github.com/samcharles93/aqlm/internal/tensor"
)

// TensorPayload is the JSON wire form of a tensor. Float dtypes carry their
// elements in values; u16 code tensors carry them in codes.
type TensorPayload struct {
	DType  string    `json:"dtype"`
	Shape  []int     `json:"shape"`
	Values []float32 `json:"values,omitempty"`
	Codes  []uint16  `json:"codes,omitempty"`
}

type MatMatRequest struct {
	Scheme    string         `json:"scheme"`
	Input     *TensorPayload `json:"input"`
	Codes     *TensorPayload `json:"codes"`
	Codebooks *TensorPayload `json:"codebooks"`
	Scales    *TensorPayload `json:"scales"`
}

type MatMatResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Backend string        `json:"backend"`
	Output  TensorPayload `json:"output"`
}

type BackendsResponse struct {
	Available []string `json:"available"`
	Active    string   `json:"active"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

func parseDType(s string) (tensor.DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "float32":
		return tensor.F32, nil
	case "f16", "float16":
		return tensor.F16, nil
	case "bf16", "bfloat16":
		return tensor.BF16, nil
	case "u16", "uint16":
		return tensor.U16, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

func dtypeName(dt tensor.DType) string {
	switch dt {
	case tensor.F32:
		return "f32"
	case tensor.F16:
		return "f16"
	case tensor.BF16:
		return "bf16"
	case tensor.U16:
		return "u16"
	default:
		return "unknown"
	}
}

// Tensor materializes the payload, validating shape against element count.
func (p *TensorPayload) Tensor(field string) (*tensor.Tensor, error) {
	if p == nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	dt, err := parseDType(p.DType)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", field, err)
	}
	n := 1
	for _, d := range p.Shape {
		if d < 0 {
			return nil, fmt.Errorf("%s: negative dim in shape %v", field, p.Shape)
		}
		n *= d
	}
	if dt == tensor.U16 {
		if len(p.Codes) != n {
			return nil, fmt.Errorf("%s: %d codes for shape %v", field, len(p.Codes), p.Shape)
		}
		return tensor.FromUint16(p.Shape, p.Codes), nil
	}
	if len(p.Values) != n {
		return nil, fmt.Errorf("%s: %d values for shape %v", field, len(p.Values), p.Shape)
	}
	return tensor.FromFloat32(dt, p.Shape, p.Values), nil
}

func payloadFrom(t *tensor.Tensor) TensorPayload {
	out := TensorPayload{
		DType: dtypeName(t.DType),
		Shape: append([]int(nil), t.Shape...),
	}
	if t.DType == tensor.U16 {
		out.Codes = append([]uint16(nil), t.Uint16s()...)
		return out
	}
	vals := make([]float32, t.NumEl())
	t.DecodeFloat32(vals)
	out.Values = vals
	return out
}
