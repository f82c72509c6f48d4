package aqlm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/tensor"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine("cpu")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(3, 5))
}

// smallWeight2x8 builds a 2x8 weight whose dense form is fully known: every
// code is 0x0100, bank 0 entry 0 is all ones and bank 1 entry 1 all twos, so
// each weight element is 3.
func smallWeight2x8(m, k int, elem tensor.DType) (codes, books, scales *tensor.Tensor) {
	codeVals := make([]uint16, m*k/8)
	for i := range codeVals {
		codeVals[i] = 0x0100
	}
	bookVals := make([]float32, 2*256*8)
	for i := 0; i < 8; i++ {
		bookVals[i] = 1
		bookVals[256*8+8+i] = 2
	}
	scaleVals := make([]float32, m)
	for i := range scaleVals {
		scaleVals[i] = float32(i + 1)
	}
	codes = tensor.FromUint16([]int{m, k / 8, 1}, codeVals)
	books = tensor.FromFloat32(elem, []int{2, 256, 1, 8}, bookVals)
	scales = tensor.FromFloat32(elem, []int{m, 1, 1, 1}, scaleVals)
	return codes, books, scales
}

func randomWeight(rng *rand.Rand, scheme Scheme, elem tensor.DType, m, k int) (codes, books, scales *tensor.Tensor) {
	banks, entries := 1, 1<<16
	if scheme == Scheme2x8 {
		banks, entries = 2, 1<<8
	}
	codeVals := make([]uint16, m*k/8)
	for i := range codeVals {
		codeVals[i] = uint16(rng.UintN(1 << 16))
	}
	bookVals := make([]float32, banks*entries*8)
	for i := range bookVals {
		bookVals[i] = rng.Float32()*2 - 1
	}
	scaleVals := make([]float32, m)
	for i := range scaleVals {
		scaleVals[i] = rng.Float32() + 0.5
	}
	codes = tensor.FromUint16([]int{m, k / 8, 1}, codeVals)
	books = tensor.FromFloat32(elem, []int{banks, entries, 1, 8}, bookVals)
	scales = tensor.FromFloat32(elem, []int{m, 1, 1, 1}, scaleVals)
	return codes, books, scales
}

// denseMatMat is the unfused reference: reconstruct every weight element,
// multiply, scale.
func denseMatMat(scheme Scheme, input, codes, books, scales *tensor.Tensor) []float32 {
	flat := input.Flatten2D()
	b, k := flat.Shape[0], flat.Shape[1]
	m := codes.Dim(0)
	groups := k / 8

	codeVals := codes.Uint16s()
	bookVals := make([]float32, books.NumEl())
	books.DecodeFloat32(bookVals)
	entries := books.Dim(1)
	x := make([]float32, b*k)
	flat.DecodeFloat32(x)

	out := make([]float32, b*m)
	for mi := 0; mi < m; mi++ {
		scale := float64(scales.At(mi))
		for bi := 0; bi < b; bi++ {
			var acc float64
			for g := 0; g < groups; g++ {
				c := codeVals[mi*groups+g]
				for t := 0; t < 8; t++ {
					var w float64
					if scheme == Scheme1x16 {
						w = float64(bookVals[int(c)*8+t])
					} else {
						w = float64(bookVals[int(c&0xff)*8+t]) + float64(bookVals[entries*8+int(c>>8)*8+t])
					}
					acc += w * float64(x[bi*k+g*8+t])
				}
			}
			out[bi*m+mi] = float32(acc * scale)
		}
	}
	return out
}

func closeEnough(got, want float32) bool {
	diff := math.Abs(float64(got - want))
	return diff <= 1e-3*math.Max(1, math.Abs(float64(want)))
}

func TestParseScheme(t *testing.T) {
	cases := []struct {
		in      string
		want    Scheme
		wantErr bool
	}{
		{"1x16", Scheme1x16, false},
		{"2x8", Scheme2x8, false},
		{" 2X8 ", Scheme2x8, false},
		{"4x4", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseScheme(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseScheme(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseScheme(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCode2x8MatVecKnownValues(t *testing.T) {
	e := testEngine(t)
	const m, k = 3, 16
	codes, books, _ := smallWeight2x8(m, k, tensor.F32)

	inVals := make([]float32, k)
	var sum float32
	for i := range inVals {
		inVals[i] = float32(i + 1)
		sum += inVals[i]
	}
	input := tensor.FromFloat32(tensor.F32, []int{k}, inVals)
	output := tensor.New(tensor.F32, m)

	cb, err := books.Squeeze(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Code2x8MatVec(codes, input, output, cb); err != nil {
		t.Fatalf("matvec: %v", err)
	}

	want := 3 * sum // every weight element is 3, no scales in matvec
	for i := 0; i < m; i++ {
		if got := output.At(i); !closeEnough(got, want) {
			t.Fatalf("output[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestMatVecF16Output(t *testing.T) {
	e := testEngine(t)
	const m, k = 2, 8
	codes, books, _ := smallWeight2x8(m, k, tensor.F16)

	input := tensor.FromFloat32(tensor.F16, []int{k}, []float32{1, 1, 1, 1, 1, 1, 1, 1})
	output := tensor.New(tensor.F16, m)

	if err := e.Code2x8MatVec(codes, input, output, books); err != nil {
		t.Fatalf("matvec: %v", err)
	}
	for i := 0; i < m; i++ {
		// 3 * 8; exactly representable in f16
		if got := output.At(i); got != 24 {
			t.Fatalf("output[%d] = %v, want 24", i, got)
		}
	}
}

func TestMatMatAgainstDenseReference(t *testing.T) {
	e := testEngine(t)
	rng := newRNG()

	for _, scheme := range []Scheme{Scheme1x16, Scheme2x8} {
		for _, elem := range []tensor.DType{tensor.F32, tensor.F16, tensor.BF16} {
			t.Run(string(scheme)+"/"+elem.String(), func(t *testing.T) {
				const m, k, b = 24, 64, 5
				codes, books, scales := randomWeight(rng, scheme, elem, m, k)

				inVals := make([]float32, b*k)
				for i := range inVals {
					inVals[i] = rng.Float32()*2 - 1
				}
				input := tensor.FromFloat32(elem, []int{b, k}, inVals)

				var got *tensor.Tensor
				var err error
				if scheme == Scheme1x16 {
					got, err = e.Code1x16MatMat(input, codes, books, scales)
				} else {
					got, err = e.Code2x8MatMat(input, codes, books, scales)
				}
				if err != nil {
					t.Fatalf("matmat: %v", err)
				}
				if got.DType != elem {
					t.Fatalf("output dtype = %v, want %v", got.DType, elem)
				}

				want := denseMatMat(scheme, input, codes, books, scales)
				gotVals := make([]float32, got.NumEl())
				got.DecodeFloat32(gotVals)
				tol := 1e-3
				if elem != tensor.F32 {
					// Outputs round-trip through short 16-bit mantissas.
					tol = 5e-2
				}
				for i := range want {
					diff := math.Abs(float64(gotVals[i] - want[i]))
					if diff > tol*math.Max(1, math.Abs(float64(want[i]))) {
						t.Fatalf("element %d: got %v, want %v", i, gotVals[i], want[i])
					}
				}
			})
		}
	}
}

// Hand-worked products with literal codes and codebooks, one per scheme
// variation.
func TestMatMatHandWorkedCases(t *testing.T) {
	e := testEngine(t)

	ones := func(n int, v float32) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	books1x16 := func(entryVals map[int]float32) *tensor.Tensor {
		vals := make([]float32, 1<<16*8)
		for entry, v := range entryVals {
			copy(vals[entry*8:(entry+1)*8], ones(8, v))
		}
		return tensor.FromFloat32(tensor.F32, []int{1, 1 << 16, 1, 8}, vals)
	}
	books2x8 := func(bank0, bank1 map[int]float32) *tensor.Tensor {
		vals := make([]float32, 2*256*8)
		for entry, v := range bank0 {
			copy(vals[entry*8:(entry+1)*8], ones(8, v))
		}
		for entry, v := range bank1 {
			copy(vals[256*8+entry*8:256*8+(entry+1)*8], ones(8, v))
		}
		return tensor.FromFloat32(tensor.F32, []int{2, 256, 1, 8}, vals)
	}

	cases := []struct {
		name   string
		scheme Scheme
		codes  *tensor.Tensor
		books  *tensor.Tensor
		scales []float32
		input  []float32
		k      int
		want   []float32
	}{
		{
			// codebook entry 0 is all ones; output is the input sum
			name:   "1x16 single row",
			scheme: Scheme1x16,
			codes:  tensor.FromUint16([]int{1, 1, 1}, []uint16{0}),
			books:  books1x16(map[int]float32{0: 1}),
			scales: []float32{1},
			input:  []float32{1, 2, 3, 4, 5, 6, 7, 8},
			k:      8,
			want:   []float32{36},
		},
		{
			// rows mix entries 0 (ones) and 1 (twos); both rows sum to 24
			name:   "1x16 two rows two entries",
			scheme: Scheme1x16,
			codes:  tensor.FromUint16([]int{2, 2, 1}, []uint16{0, 1, 1, 0}),
			books:  books1x16(map[int]float32{0: 1, 1: 2}),
			scales: []float32{1, 1},
			input:  ones(16, 1),
			k:      16,
			want:   []float32{24, 24},
		},
		{
			// bank 0 entry 0 is ones, bank 1 entry 0 is twos; weight is 3
			name:   "2x8 bank sum",
			scheme: Scheme2x8,
			codes:  tensor.FromUint16([]int{1, 1, 1}, []uint16{0}),
			books:  books2x8(map[int]float32{0: 1}, map[int]float32{0: 2}),
			scales: []float32{1},
			input:  ones(8, 1),
			k:      8,
			want:   []float32{24},
		},
		{
			// code (low=1, high=1) picks a zero bank-0 entry and a threes
			// bank-1 entry
			name:   "2x8 nonzero indices",
			scheme: Scheme2x8,
			codes:  tensor.FromUint16([]int{1, 1, 1}, []uint16{0x0101}),
			books:  books2x8(map[int]float32{0: 1, 1: 0}, map[int]float32{0: 0, 1: 3}),
			scales: []float32{1},
			input:  ones(8, 1),
			k:      8,
			want:   []float32{24},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := tensor.FromFloat32(tensor.F32, []int{1, tc.k}, tc.input)
			scales := tensor.FromFloat32(tensor.F32, []int{len(tc.want), 1, 1, 1}, tc.scales)

			var out *tensor.Tensor
			var err error
			if tc.scheme == Scheme1x16 {
				out, err = e.Code1x16MatMat(input, tc.codes, tc.books, scales)
			} else {
				out, err = e.Code2x8MatMat(input, tc.codes, tc.books, scales)
			}
			if err != nil {
				t.Fatalf("matmat: %v", err)
			}
			got := out.Float32s()
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("output[%d] = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestMatMatShapeLaw(t *testing.T) {
	e := testEngine(t)
	const m, k = 4, 16
	codes, books, scales := smallWeight2x8(m, k, tensor.F32)

	cases := [][]int{
		{k},
		{3, k},
		{2, 3, k},
		{2, 1, 3, k},
	}
	for _, shape := range cases {
		n := 1
		for _, d := range shape {
			n *= d
		}
		input := tensor.FromFloat32(tensor.F32, shape, make([]float32, n))
		out, err := e.Code2x8MatMat(input, codes, books, scales)
		if err != nil {
			t.Fatalf("shape %v: %v", shape, err)
		}
		wantShape := append(append([]int{}, shape[:len(shape)-1]...), m)
		if len(out.Shape) != len(wantShape) {
			t.Fatalf("shape %v: output %v, want %v", shape, out.Shape, wantShape)
		}
		for i := range wantShape {
			if out.Shape[i] != wantShape[i] {
				t.Fatalf("shape %v: output %v, want %v", shape, out.Shape, wantShape)
			}
		}
	}
}

func TestMatMatEmptyBatch(t *testing.T) {
	e := testEngine(t)
	const m, k = 4, 16
	codes, books, scales := smallWeight2x8(m, k, tensor.F32)
	input := tensor.New(tensor.F32, 0, k)

	before := kernels.Launches()
	out, err := e.Code2x8MatMat(input, codes, books, scales)
	if err != nil {
		t.Fatalf("matmat: %v", err)
	}
	if out.Dim(0) != 0 || out.Dim(1) != m {
		t.Fatalf("output shape = %v, want (0, %d)", out.Shape, m)
	}
	if d := kernels.Launches() - before; d != 0 {
		t.Fatalf("launch delta = %d, want 0", d)
	}
}

func TestMatMatScaleLaw(t *testing.T) {
	e := testEngine(t)
	rng := newRNG()
	const m, k, b = 8, 32, 2
	codes, books, scales := randomWeight(rng, Scheme2x8, tensor.F32, m, k)

	inVals := make([]float32, b*k)
	for i := range inVals {
		inVals[i] = rng.Float32()*2 - 1
	}
	input := tensor.FromFloat32(tensor.F32, []int{b, k}, inVals)

	base, err := e.Code2x8MatMat(input, codes, books, scales)
	if err != nil {
		t.Fatal(err)
	}

	doubledVals := make([]float32, m)
	scales.DecodeFloat32(doubledVals)
	for i := range doubledVals {
		doubledVals[i] *= 2
	}
	doubled := tensor.FromFloat32(tensor.F32, []int{m, 1, 1, 1}, doubledVals)

	got, err := e.Code2x8MatMat(input, codes, books, doubled)
	if err != nil {
		t.Fatal(err)
	}
	baseVals := base.Float32s()
	gotVals := got.Float32s()
	for i := range baseVals {
		if !closeEnough(gotVals[i], 2*baseVals[i]) {
			t.Fatalf("element %d: %v, want %v", i, gotVals[i], 2*baseVals[i])
		}
	}
}

func TestMatMatZeroScales(t *testing.T) {
	e := testEngine(t)
	rng := newRNG()
	const m, k, b = 6, 24, 3
	codes, books, _ := randomWeight(rng, Scheme1x16, tensor.F32, m, k)
	zeros := tensor.New(tensor.F32, m, 1, 1, 1)

	inVals := make([]float32, b*k)
	for i := range inVals {
		inVals[i] = rng.Float32()
	}
	input := tensor.FromFloat32(tensor.F32, []int{b, k}, inVals)

	out, err := e.Code1x16MatMat(input, codes, books, zeros)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Float32s() {
		if v != 0 {
			t.Fatalf("element %d = %v, want 0", i, v)
		}
	}
}

func TestPackageLevelOpsUseDefaultEngine(t *testing.T) {
	const m, k = 2, 8
	codes, books, scales := smallWeight2x8(m, k, tensor.F32)
	input := tensor.FromFloat32(tensor.F32, []int{1, k}, []float32{1, 2, 3, 4, 5, 6, 7, 8})

	out, err := Code2x8MatMat(input, codes, books, scales)
	if err != nil {
		t.Fatalf("matmat: %v", err)
	}
	// 3 * 36 * scale, scales are 1 and 2
	vals := out.Float32s()
	if !closeEnough(vals[0], 108) || !closeEnough(vals[1], 216) {
		t.Fatalf("output = %v, want [108 216]", vals)
	}
}
