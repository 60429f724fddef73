package scale

import (
	"fmt"
	"image/color"
)

// Kind identifies a scale family. The set is closed.
type Kind uint8

// Scale families.
const (
	Identity Kind = iota
	Linear
	Log
	Pow
	Sqrt
	Symlog
	Band
	Index
	Ordinal
	Threshold
	Quantize
)

var kindNames = [...]string{
	Identity:  "identity",
	Linear:    "linear",
	Log:       "log",
	Pow:       "pow",
	Sqrt:      "sqrt",
	Symlog:    "symlog",
	Band:      "band",
	Index:     "index",
	Ordinal:   "ordinal",
	Threshold: "threshold",
	Quantize:  "quantize",
}

// String returns the configuration name of the family.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a configuration name to a Kind. The empty string is
// the identity scale.
func ParseKind(name string) (Kind, bool) {
	if name == "" {
		return Identity, true
	}
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Interpolator maps t in [0, 1] to a colour. It is rasterised into a
// range texture.
type Interpolator func(t float64) color.Color

type rangeKind uint8

const (
	rangeNumber rangeKind = iota
	rangeVector
	rangeColor
)

// RangeValue is one entry of a scale range: a number, a vector of three
// or four components, or a CSS colour string.
type RangeValue struct {
	kind  rangeKind
	num   float64
	vec   []float64
	color string
}

// Num returns a numeric range value.
func Num(v float64) RangeValue { return RangeValue{kind: rangeNumber, num: v} }

// Vec returns a vector range value.
func Vec(v ...float64) RangeValue { return RangeValue{kind: rangeVector, vec: v} }

// CSS returns a colour range value such as "steelblue" or "#ff8800".
func CSS(c string) RangeValue { return RangeValue{kind: rangeColor, color: c} }

// Nums converts numbers to range values.
func Nums(vs ...float64) []RangeValue {
	out := make([]RangeValue, len(vs))
	for i, v := range vs {
		out[i] = Num(v)
	}
	return out
}

// Colors converts CSS colour strings to range values.
func Colors(cs ...string) []RangeValue {
	out := make([]RangeValue, len(cs))
	for i, c := range cs {
		out[i] = CSS(c)
	}
	return out
}

// IsNumber reports whether the value is a plain number.
func (r RangeValue) IsNumber() bool { return r.kind == rangeNumber }

// Number returns the numeric value.
func (r RangeValue) Number() float64 { return r.num }

// isColor reports whether the value can be read as a colour.
func (r RangeValue) isColor() bool {
	switch r.kind {
	case rangeColor:
		return true
	case rangeVector:
		return len(r.vec) == 3 || len(r.vec) == 4
	}
	return false
}

// String formats the value for error messages.
func (r RangeValue) String() string {
	switch r.kind {
	case rangeVector:
		return fmt.Sprint(r.vec)
	case rangeColor:
		return fmt.Sprintf("%q", r.color)
	}
	return fmt.Sprint(r.num)
}

// IsColorRange reports whether every entry of a non-empty range is a
// colour string or an RGB(A) vector.
func IsColorRange(rng []RangeValue) bool {
	if len(rng) == 0 {
		return false
	}
	for _, v := range rng {
		if !v.isColor() {
			return false
		}
	}
	return true
}

// Config is the declarative scale of one channel.
type Config struct {
	// Type is the family name; empty means identity.
	Type string

	// Domain is the input extent or the list of categories/stops. A nil
	// domain means "not given" and picks the family default.
	Domain []float64

	// Range lists output stops: numbers, vectors or CSS colours.
	Range []RangeValue

	// Interpolator, when set, is a function range sampled into a colour
	// ramp. It takes precedence over Range.
	Interpolator Interpolator

	// Interpolate names the colour space used to blend colour stops
	// ("rgb" or "hsl"). Empty leaves interpolation implicit.
	Interpolate string

	Base         *float64
	Exponent     *float64
	Constant     *float64
	PaddingInner *float64
	PaddingOuter *float64
	Align        *float64
	Band         *float64

	Clamp bool
	Round bool
}

// Kind returns the parsed family, or false for an unknown name.
func (c *Config) Kind() (Kind, bool) {
	if c == nil {
		return Identity, true
	}
	return ParseKind(c.Type)
}

// param returns an explicitly configured parameter value.
func (c *Config) param(prop string) (float64, bool) {
	if c == nil {
		return 0, false
	}
	var p *float64
	switch prop {
	case "base":
		p = c.Base
	case "exponent":
		p = c.Exponent
	case "constant":
		p = c.Constant
	case "paddingInner":
		p = c.PaddingInner
	case "paddingOuter":
		p = c.PaddingOuter
	case "align":
		p = c.Align
	case "band":
		p = c.Band
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// F returns a pointer to v, for the optional parameter fields.
func F(v float64) *float64 { return &v }

// isInterpolated reports whether colour interpolation is requested,
// explicitly or through a function or colour range.
func (c *Config) isInterpolated() bool {
	if c == nil {
		return false
	}
	return c.Interpolator != nil || c.Interpolate != "" || IsColorRange(c.Range)
}
