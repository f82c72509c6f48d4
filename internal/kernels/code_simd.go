package kernels

import "simd/archsimd"

// CPUFeatures holds detected CPU capabilities, checked once at init.
type CPUFeatures struct {
	HasAVX2 bool
}

var cpu CPUFeatures

func init() {
	cpu.HasAVX2 = archsimd.X86.AVX2()
}

// code1x16RangeF32SIMD is the AVX2 path for a float32 codebook. One 8-lane
// vector covers exactly one sub-block, so the j loop accumulates whole
// codebook entries without a remainder loop.
func code1x16RangeF32SIMD(dst []float32, codes []uint16, x []float32, cbf []float32, rs, re, kg int) {
	for m := rs; m < re; m++ {
		row := codes[m*kg : (m+1)*kg]

		var acc archsimd.Float32x8
		for j, c := range row {
			ve := archsimd.LoadFloat32x8Slice(cbf[int(c)*SubBlock:])
			vx := archsimd.LoadFloat32x8Slice(x[j*SubBlock:])
			acc = acc.Add(ve.Mul(vx))
		}

		var tmp [8]float32
		acc.Store(&tmp)
		dst[m] = tmp[0] + tmp[1] + tmp[2] + tmp[3] + tmp[4] + tmp[5] + tmp[6] + tmp[7]
	}
}

// code2x8RangeSIMD is the AVX2 path over staged banks: the two bank entries
// are summed lane-wise before the multiply.
func code2x8RangeSIMD(dst []float32, codes []uint16, x []float32, lo, hi []float32, rs, re, kg int) {
	for m := rs; m < re; m++ {
		row := codes[m*kg : (m+1)*kg]

		var acc archsimd.Float32x8
		for j, c := range row {
			vl := archsimd.LoadFloat32x8Slice(lo[int(c&0xFF)*SubBlock:])
			vh := archsimd.LoadFloat32x8Slice(hi[int(c>>8)*SubBlock:])
			vx := archsimd.LoadFloat32x8Slice(x[j*SubBlock:])
			acc = acc.Add(vl.Add(vh).Mul(vx))
		}

		var tmp [8]float32
		acc.Store(&tmp)
		dst[m] = tmp[0] + tmp[1] + tmp[2] + tmp[3] + tmp[4] + tmp[5] + tmp[6] + tmp[7]
	}
}
