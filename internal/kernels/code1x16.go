package kernels

// code1x16Range computes dst[m] for rows rs..re of the 1x16 scheme:
// dst[m] = sum_j dot(codebook[codes[m,j]], x[8j:8j+8]).
//
// The 65,536-entry codebook is too large to stage, so entries are fetched on
// demand; for 16-bit element types each lane decodes through the dtype table.
// Accumulation is float32 throughout.
func code1x16Range(dst []float32, codes []uint16, x []float32, cb *Codebook, rs, re, kg int) {
	if cb.f32 != nil {
		if cpu.HasAVX2 {
			code1x16RangeF32SIMD(dst, codes, x, cb.f32, rs, re, kg)
			return
		}
		code1x16RangeF32(dst, codes, x, cb.f32, rs, re, kg)
		return
	}
	code1x16RangeU16(dst, codes, x, cb.raw, cb.tbl, rs, re, kg)
}

func code1x16RangeF32(dst []float32, codes []uint16, x []float32, cbf []float32, rs, re, kg int) {
	for m := rs; m < re; m++ {
		row := codes[m*kg : (m+1)*kg]
		var sum float32
		for j, c := range row {
			e := cbf[int(c)*SubBlock : int(c)*SubBlock+SubBlock]
			xv := x[j*SubBlock : j*SubBlock+SubBlock]
			sum += e[0]*xv[0] + e[1]*xv[1] + e[2]*xv[2] + e[3]*xv[3] +
				e[4]*xv[4] + e[5]*xv[5] + e[6]*xv[6] + e[7]*xv[7]
		}
		dst[m] = sum
	}
}

func code1x16RangeU16(dst []float32, codes []uint16, x []float32, raw []uint16, tbl *[1 << 16]float32, rs, re, kg int) {
	for m := rs; m < re; m++ {
		row := codes[m*kg : (m+1)*kg]
		var sum float32
		for j, c := range row {
			e := raw[int(c)*SubBlock : int(c)*SubBlock+SubBlock]
			xv := x[j*SubBlock : j*SubBlock+SubBlock]
			sum += tbl[e[0]]*xv[0] + tbl[e[1]]*xv[1] + tbl[e[2]]*xv[2] + tbl[e[3]]*xv[3] +
				tbl[e[4]]*xv[4] + tbl[e[5]]*xv[5] + tbl[e[6]]*xv[6] + tbl[e[7]]*xv[7]
		}
		dst[m] = sum
	}
}
