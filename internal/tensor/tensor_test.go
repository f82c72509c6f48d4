package tensor

import (
	"math"
	"testing"
)

func TestFP16RoundTrip(t *testing.T) {
	cases := []float32{
		0, 1, -1, 0.5, 2, 65504, -65504,
		6.103515625e-05,       // smallest normal
		5.960464477539063e-08, // smallest subnormal
		0.333251953125,
	}
	for _, v := range cases {
		bits := float32ToFP16Bits(v)
		got := fp16Table[bits]
		if got != v {
			t.Errorf("fp16 round trip %v -> %#04x -> %v", v, bits, got)
		}
	}
}

func TestFP16Specials(t *testing.T) {
	inf := float32(math.Inf(1))
	if got := fp16Table[float32ToFP16Bits(inf)]; !math.IsInf(float64(got), 1) {
		t.Errorf("+inf -> %v", got)
	}
	if got := fp16Table[float32ToFP16Bits(float32(math.Inf(-1)))]; !math.IsInf(float64(got), -1) {
		t.Errorf("-inf -> %v", got)
	}
	nan := float32(math.NaN())
	if got := fp16Table[float32ToFP16Bits(nan)]; !math.IsNaN(float64(got)) {
		t.Errorf("nan -> %v", got)
	}
	// overflow saturates to inf
	if got := fp16Table[float32ToFP16Bits(1e30)]; !math.IsInf(float64(got), 1) {
		t.Errorf("1e30 -> %v, want +inf", got)
	}
	// underflow flushes to signed zero
	if bits := float32ToFP16Bits(-1e-30); bits != 0x8000 {
		t.Errorf("-1e-30 -> %#04x, want 0x8000", bits)
	}
}

func TestFP16RoundToNearestEven(t *testing.T) {
	// 1 + 2^-11 sits exactly between 1.0 and the next f16; ties go to even.
	v := math.Float32frombits(0x3F800000 | (1 << 12))
	if bits := float32ToFP16Bits(v); bits != 0x3C00 {
		t.Errorf("tie rounding: got %#04x, want 0x3C00", bits)
	}
	// Just above the tie rounds up.
	v = math.Float32frombits(0x3F800000 | (1 << 12) | 1)
	if bits := float32ToFP16Bits(v); bits != 0x3C01 {
		t.Errorf("above tie: got %#04x, want 0x3C01", bits)
	}
}

func TestBF16RoundTrip(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, 2, 128, -3.875}
	for _, v := range cases {
		bits := bf16FromF32Bits(math.Float32bits(v))
		got := bf16Table[bits]
		if got != v {
			t.Errorf("bf16 round trip %v -> %#04x -> %v", v, bits, got)
		}
	}
	if got := bf16Table[bf16FromF32Bits(math.Float32bits(float32(math.Inf(1))))]; !math.IsInf(float64(got), 1) {
		t.Errorf("+inf -> %v", got)
	}
}

func TestDecodeTable(t *testing.T) {
	if F32.DecodeTable() != nil {
		t.Error("F32 decode table should be nil")
	}
	if F16.DecodeTable() == nil || BF16.DecodeTable() == nil {
		t.Error("16-bit float decode tables missing")
	}
	if got := F16.DecodeTable()[0x3C00]; got != 1 {
		t.Errorf("f16 0x3C00 = %v, want 1", got)
	}
	if got := BF16.DecodeTable()[0x3F80]; got != 1 {
		t.Errorf("bf16 0x3F80 = %v, want 1", got)
	}
}

func TestElemSizeAndString(t *testing.T) {
	cases := []struct {
		dt   DType
		size int
		name string
	}{
		{F32, 4, "f32"},
		{F16, 2, "f16"},
		{BF16, 2, "bf16"},
		{U8, 1, "u8"},
		{U16, 2, "u16"},
	}
	for _, tc := range cases {
		if got := tc.dt.ElemSize(); got != tc.size {
			t.Errorf("%s elem size = %d, want %d", tc.name, got, tc.size)
		}
		if got := tc.dt.String(); got != tc.name {
			t.Errorf("String() = %q, want %q", got, tc.name)
		}
	}
}

func TestWithShape(t *testing.T) {
	base := New(F32, 2, 3, 4)

	v, err := base.WithShape(6, 4)
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}
	if v.Shape[0] != 6 || v.Shape[1] != 4 {
		t.Fatalf("shape = %v", v.Shape)
	}
	if &v.Data[0] != &base.Data[0] {
		t.Fatal("reshape copied storage")
	}

	v, err = base.WithShape(-1, 4)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if v.Shape[0] != 6 {
		t.Fatalf("inferred dim = %d, want 6", v.Shape[0])
	}

	if _, err := base.WithShape(5, 5); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := base.WithShape(-1, -1); err == nil {
		t.Fatal("expected multiple -1 error")
	}
}

func TestFlatten2D(t *testing.T) {
	cases := []struct {
		shape []int
		b, k  int
	}{
		{[]int{8}, 1, 8},
		{[]int{3, 8}, 3, 8},
		{[]int{2, 3, 8}, 6, 8},
		{[]int{0, 8}, 0, 8},
	}
	for _, tc := range cases {
		flat := New(F32, tc.shape...).Flatten2D()
		if flat.Shape[0] != tc.b || flat.Shape[1] != tc.k {
			t.Errorf("Flatten2D(%v) = %v, want (%d, %d)", tc.shape, flat.Shape, tc.b, tc.k)
		}
	}
}

func TestSqueeze(t *testing.T) {
	v, err := New(U16, 4, 2, 1).Squeeze(2)
	if err != nil {
		t.Fatalf("squeeze: %v", err)
	}
	if len(v.Shape) != 2 || v.Shape[0] != 4 || v.Shape[1] != 2 {
		t.Fatalf("shape = %v", v.Shape)
	}

	v, err = New(U16, 4, 1, 2).Squeeze(-2)
	if err != nil {
		t.Fatalf("negative axis: %v", err)
	}
	if len(v.Shape) != 2 {
		t.Fatalf("shape = %v", v.Shape)
	}

	if _, err := New(U16, 4, 2).Squeeze(0); err == nil {
		t.Fatal("expected error squeezing non-unit axis")
	}
}

func TestEncodeDecodeFloat32(t *testing.T) {
	vals := []float32{1, -2, 0.5, 3.25}
	for _, dt := range []DType{F32, F16, BF16} {
		tt := FromFloat32(dt, []int{4}, vals)
		out := make([]float32, 4)
		tt.DecodeFloat32(out)
		for i, v := range vals {
			// All values exactly representable in every dtype here.
			if out[i] != v {
				t.Errorf("%s: element %d = %v, want %v", dt, i, out[i], v)
			}
			if got := tt.At(i); got != v {
				t.Errorf("%s: At(%d) = %v, want %v", dt, i, got, v)
			}
		}
		tt.SetAt(2, 7)
		if got := tt.At(2); got != 7 {
			t.Errorf("%s: SetAt = %v, want 7", dt, got)
		}
	}
}

func TestUint16View(t *testing.T) {
	vals := []uint16{0, 1, 0xFFFF, 0x1234}
	tt := FromUint16([]int{4}, vals)
	got := tt.Uint16s()
	for i, v := range vals {
		if got[i] != v {
			t.Fatalf("element %d = %#04x, want %#04x", i, got[i], v)
		}
	}
}

// Float32s is a write-through view; storage it cannot view must panic
// rather than hand back a copy whose writes would be dropped.
func TestFloat32ViewWriteThrough(t *testing.T) {
	tt := New(F32, 3)
	tt.Float32s()[1] = 42
	if got := tt.At(1); got != 42 {
		t.Fatalf("element 1 = %v after write through view, want 42", got)
	}

	if got := New(F32, 0, 4).Float32s(); got != nil {
		t.Fatalf("empty tensor view = %v, want nil", got)
	}

	raw := make([]byte, 9)
	misaligned := &Tensor{DType: F32, Shape: []int{2}, Data: raw[1:9]}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned storage")
		}
	}()
	_ = misaligned.Float32s()
}

func TestScaleRows(t *testing.T) {
	flat := FromFloat32(F32, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	scales := FromFloat32(F32, []int{3}, []float32{2, 0, -1})
	if err := ScaleRows(flat, scales); err != nil {
		t.Fatalf("scale: %v", err)
	}
	want := []float32{2, 0, -3, 8, 0, -6}
	for i, v := range flat.Float32s() {
		if v != want[i] {
			t.Fatalf("element %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestScaleRowsF16(t *testing.T) {
	flat := FromFloat32(F16, []int{2, 2}, []float32{1, 2, 3, 4})
	scales := FromFloat32(F16, []int{2}, []float32{0.5, 2})
	if err := ScaleRows(flat, scales); err != nil {
		t.Fatalf("scale: %v", err)
	}
	want := []float32{0.5, 4, 1.5, 8}
	out := make([]float32, 4)
	flat.DecodeFloat32(out)
	for i, v := range out {
		if v != want[i] {
			t.Fatalf("element %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestScaleRowsValidation(t *testing.T) {
	if err := ScaleRows(New(F32, 2, 3, 4), New(F32, 4)); err == nil {
		t.Fatal("expected rank error")
	}
	if err := ScaleRows(New(F32, 2, 3), New(F16, 3)); err == nil {
		t.Fatal("expected dtype error")
	}
	if err := ScaleRows(New(F32, 2, 3), New(F32, 2)); err == nil {
		t.Fatal("expected count error")
	}
}
