// Package wgsl holds the naming contract and literal formatting shared by
// the generated shader code and the host-side resource managers.
//
// Uniform fields, storage buffers and generated functions are named with
// fixed prefixes. Hand-written mark shader bodies reference these names, so
// they must not change.
package wgsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Name prefixes of generated uniforms, bindings and functions.
const (
	DomainPrefix         = "uDomain_"
	RangePrefix          = "uRange_"
	RangeCountPrefix     = "uRangeCount_"
	DomainMapCountPrefix = "uDomainMapCount_"
	DomainMapPrefix      = "domainMap_"
	OrdinalRangePrefix   = "range_"
	RangeTexturePrefix   = "uRangeTexture_"
	RangeSamplerPrefix   = "uRangeSampler_"
	ValuePrefix          = "u_"

	SelectionPrefix       = "uSelection_"
	SelectionCountPrefix  = "uSelectionCount_"
	SelectionBufferPrefix = "selection_"

	ScaledFunctionPrefix      = "getScaled_"
	ReadFunctionPrefix        = "read_"
	SelectedFunctionPrefix    = "isSelected_"
	ConditionedFunctionPrefix = "getConditioned_"
)

// Names of the packed series storage buffers.
const (
	SeriesF32 = "seriesF32"
	SeriesU32 = "seriesU32"
	SeriesI32 = "seriesI32"
)

// ScalarType is a WGSL scalar type usable in series data, uniforms and
// scale outputs. The zero value means "unspecified".
type ScalarType uint8

// Scalar types.
const (
	F32 ScalarType = iota + 1
	U32
	I32
)

// String returns the WGSL spelling of the type.
func (t ScalarType) String() string {
	switch t {
	case F32:
		return "f32"
	case U32:
		return "u32"
	case I32:
		return "i32"
	default:
		return fmt.Sprintf("ScalarType(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the supported scalar types.
func (t ScalarType) Valid() bool {
	return t == F32 || t == U32 || t == I32
}

// Or returns t, or def when t is unspecified.
func (t ScalarType) Or(def ScalarType) ScalarType {
	if t == 0 {
		return def
	}
	return t
}

// ParseScalarType parses "f32", "u32" or "i32".
func ParseScalarType(s string) (ScalarType, error) {
	switch s {
	case "f32":
		return F32, nil
	case "u32":
		return U32, nil
	case "i32":
		return I32, nil
	}
	return 0, fmt.Errorf("wgsl: unknown scalar type %q", s)
}

// SeriesBuffer returns the packed storage buffer name for a scalar type.
func SeriesBuffer(t ScalarType) string {
	switch t {
	case U32:
		return SeriesU32
	case I32:
		return SeriesI32
	default:
		return SeriesF32
	}
}

// VecType returns the WGSL type of a value with the given component count:
// the scalar itself for 1, vecN<T> otherwise.
func VecType(t ScalarType, components int) string {
	if components <= 1 {
		return t.Or(F32).String()
	}
	return fmt.Sprintf("vec%d<%s>", components, t.Or(F32))
}

// FormatFloat formats v as an f32 literal. Integral values keep a ".0"
// suffix so the literal is never inferred as an integer.
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	s := strconv.FormatFloat(v, 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FormatScalar formats v as a literal of type t. Integer types are
// truncated toward zero.
func FormatScalar(v float64, t ScalarType) string {
	switch t {
	case U32:
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		return fmt.Sprintf("u32(%d)", uint32(math.Min(math.Trunc(v), math.MaxUint32)))
	case I32:
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(math.Min(math.Trunc(v), math.MaxInt32), math.MinInt32)
		return fmt.Sprintf("i32(%d)", int32(v))
	default:
		return FormatFloat(v)
	}
}
