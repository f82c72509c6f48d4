package kernels

// code2x8Range computes dst[m] for rows rs..re of the 2x8 scheme. Each code
// carries two 8-bit indices, low byte into bank 0 and high byte into bank 1;
// the decoded sub-block is the sum of the two bank entries. Both banks are
// staged as float32 before the row loop, so lookups never decode.
func code2x8Range(dst []float32, codes []uint16, x []float32, cb *Codebook, rs, re, kg int) {
	lo := cb.bank(0)
	hi := cb.bank(1)
	if cpu.HasAVX2 {
		code2x8RangeSIMD(dst, codes, x, lo, hi, rs, re, kg)
		return
	}
	code2x8RangeScalar(dst, codes, x, lo, hi, rs, re, kg)
}

func code2x8RangeScalar(dst []float32, codes []uint16, x []float32, lo, hi []float32, rs, re, kg int) {
	for m := rs; m < re; m++ {
		row := codes[m*kg : (m+1)*kg]
		var sum float32
		for j, c := range row {
			li := int(c&0xFF) * SubBlock
			hj := int(c>>8) * SubBlock
			l := lo[li : li+SubBlock]
			h := hi[hj : hj+SubBlock]
			xv := x[j*SubBlock : j*SubBlock+SubBlock]
			sum += (l[0]+h[0])*xv[0] + (l[1]+h[1])*xv[1] + (l[2]+h[2])*xv[2] + (l[3]+h[3])*xv[3] +
				(l[4]+h[4])*xv[4] + (l[5]+h[5])*xv[5] + (l[6]+h[6])*xv[6] + (l[7]+h[7])*xv[7]
		}
		dst[m] = sum
	}
}
