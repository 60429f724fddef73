package wgsl

import "testing"

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{-3, "-3.0"},
		{0.5, "0.5"},
		{0.1, "0.1"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatScalar(t *testing.T) {
	tests := []struct {
		v    float64
		t    ScalarType
		want string
	}{
		{3.7, U32, "u32(3)"},
		{-2.9, I32, "i32(-2)"},
		{-1, U32, "u32(0)"},
		{2, F32, "2.0"},
	}
	for _, tt := range tests {
		if got := FormatScalar(tt.v, tt.t); got != tt.want {
			t.Errorf("FormatScalar(%v, %v) = %q, want %q", tt.v, tt.t, got, tt.want)
		}
	}
}

func TestScalarTypeParsing(t *testing.T) {
	for _, typ := range []ScalarType{F32, U32, I32} {
		got, err := ParseScalarType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseScalarType(%q) = %v, %v", typ.String(), got, err)
		}
	}
	if _, err := ParseScalarType("f16"); err == nil {
		t.Error("ParseScalarType(\"f16\") should fail")
	}
	if got := ScalarType(0).Or(F32); got != F32 {
		t.Errorf("Or() = %v, want f32", got)
	}
}

func TestVecTypeAndSeriesBuffer(t *testing.T) {
	if got := VecType(F32, 4); got != "vec4<f32>" {
		t.Errorf("VecType(f32, 4) = %q", got)
	}
	if got := VecType(U32, 1); got != "u32" {
		t.Errorf("VecType(u32, 1) = %q", got)
	}
	if got := SeriesBuffer(I32); got != "seriesI32" {
		t.Errorf("SeriesBuffer(i32) = %q", got)
	}
}
