package tensor

import "fmt"

// ScaleRows multiplies each row of a rank-2 tensor elementwise by scales,
// broadcasting scales over the batch axis: flat[b, m] *= scales[m]. The
// multiply is performed in float32 and stored back in the tensor's dtype,
// matching the driver's post-accumulation scale step.
func ScaleRows(flat *Tensor, scales *Tensor) error {
	if len(flat.Shape) != 2 {
		return fmt.Errorf("%w: ScaleRows wants rank-2, got %v", ErrShapeMismatch, flat.Shape)
	}
	if flat.DType != scales.DType {
		return fmt.Errorf("%w: output %s vs scales %s", ErrDTypeMismatch, flat.DType, scales.DType)
	}
	b, m := flat.Shape[0], flat.Shape[1]
	if scales.NumEl() != m {
		return fmt.Errorf("%w: %d scales for %d output features", ErrShapeMismatch, scales.NumEl(), m)
	}
	s := make([]float32, m)
	scales.DecodeFloat32(s)

	if flat.DType == F32 {
		out := flat.Float32s()
		for i := 0; i < b; i++ {
			row := out[i*m : (i+1)*m]
			for j, sv := range s {
				row[j] *= sv
			}
		}
		return nil
	}

	tmp := make([]float32, m)
	for i := 0; i < b; i++ {
		row := &Tensor{DType: flat.DType, Shape: []int{m}, Data: flat.RowBytes(i)}
		row.DecodeFloat32(tmp)
		for j, sv := range s {
			tmp[j] *= sv
		}
		row.EncodeFloat32(tmp)
	}
	return nil
}
