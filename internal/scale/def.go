package scale

import (
	"errors"
	"fmt"

	"github.com/gogpu/markgpu/internal/wgsl"
)

// Errors returned by scale validation, normalization and updates.
var (
	ErrUnsupported    = errors.New("scale: unsupported scale")
	ErrInvalidConfig  = errors.New("scale: invalid configuration")
	ErrUnknownChannel = errors.New("scale: unknown channel")
)

// InputRule constrains the scalar type a family accepts.
type InputRule uint8

// Input rules.
const (
	InputAny InputRule = iota
	InputNumeric
	InputU32
)

// OutputRule derives the scalar output type of a scalar channel.
type OutputRule uint8

// Output rules.
const (
	OutputSame OutputRule = iota
	OutputF32
)

// VectorOutput tells whether a family may produce vector outputs.
type VectorOutput uint8

// Vector output modes.
const (
	VectorNever VectorOutput = iota
	VectorInterpolated
	VectorAlways
)

// StopKind selects how domain and range stops are stored in uniforms.
type StopKind uint8

// Stop kinds.
const (
	StopNone StopKind = iota
	StopContinuous
	StopPiecewise
	StopThreshold
	StopQuantize
)

func (k StopKind) label() string {
	switch k {
	case StopPiecewise:
		return "piecewise"
	case StopThreshold:
		return "threshold"
	case StopQuantize:
		return "quantize"
	}
	return "continuous"
}

// Param is a per-family f32 uniform such as the log base.
type Param struct {
	Prefix  string
	Prop    string
	Default float64
}

// Info is the static description of a family.
type Info struct {
	Input        InputRule
	Output       OutputRule
	Continuous   bool
	VectorOutput VectorOutput
	Params       []Param

	Stops             StopKind
	SupportsPiecewise bool
	NeedsDomainMap    bool
	NeedsOrdinalRange bool
}

// Requirements are the resources a channel's scale needs.
type Requirements struct {
	Stops             StopKind
	NeedsDomainMap    bool
	NeedsOrdinalRange bool
}

// Requirements resolves the stop kind for a piecewise or regular scale.
func (i Info) Requirements(piecewise bool) Requirements {
	r := Requirements{
		Stops:             i.Stops,
		NeedsDomainMap:    i.NeedsDomainMap,
		NeedsOrdinalRange: i.NeedsOrdinalRange,
	}
	if piecewise && i.SupportsPiecewise {
		r.Stops = StopPiecewise
	}
	return r
}

// OutputType returns the scalar output type of a scalar channel with the
// given input type. Vector outputs are always f32.
func (i Info) OutputType(input wgsl.ScalarType) wgsl.ScalarType {
	if i.Output == OutputF32 {
		return wgsl.F32
	}
	return input.Or(wgsl.F32)
}

// AllowsVector reports whether vector outputs are allowed.
func (i Info) AllowsVector(interpolated bool) bool {
	return i.VectorOutput == VectorAlways || (i.VectorOutput == VectorInterpolated && interpolated)
}

// Binding describes how one channel uses its scale. It is derived from
// the channel analysis.
type Binding struct {
	Name             string
	Scale            *Config
	InputType        wgsl.ScalarType
	InputComponents  int
	OutputComponents int
	OutputType       wgsl.ScalarType
	Piecewise        bool
	UseRangeTexture  bool
}

// Kind returns the family of the bound scale.
func (b Binding) Kind() Kind {
	k, _ := b.Scale.Kind()
	return k
}

// Stops holds normalized stops ready for the uniform block. Range is
// flattened with RangeComponents values per stop.
type Stops struct {
	Kind            StopKind
	Domain          []float64
	Range           []float64
	RangeComponents int
	DomainLength    int
	RangeLength     int
}

// DomainMap is the normalized sparse domain of an ordinal or band scale.
// Keys is nil when the domain is already dense (0..N-1).
type DomainMap struct {
	Keys          []uint32
	Size          int
	DomainUniform []float64
}

// EmitInput carries what a family needs to emit its getScaled_ function.
type EmitInput struct {
	Binding
	FunctionName  string
	RawExpr       string
	DomainMapName string
	DomainLength  int
	RangeLength   int
}

// Def is one scale family.
type Def interface {
	Kind() Kind
	Info() Info

	// Validate reports family-specific configuration errors.
	Validate(b Binding) error

	// StopLengths returns the domain and range uniform array lengths.
	StopLengths(b Binding, kind StopKind) (domain, rng int, err error)

	// NormalizeStops converts the configured domain and range into
	// uniform values. defaultRange is used when no range is configured.
	NormalizeStops(b Binding, kind StopKind, defaultRange []float64) (*Stops, error)

	// Emit returns the WGSL getScaled_ function.
	Emit(in EmitInput) (string, error)
}

// DomainMapper is implemented by families that map sparse categories to
// dense indices.
type DomainMapper interface {
	NormalizeDomainMap(name string, domain []float64) (*DomainMap, error)
}

var registry = map[Kind]Def{}

func register(d Def) {
	registry[d.Kind()] = d
}

// Lookup returns the definition of a family.
func Lookup(k Kind) (Def, bool) {
	d, ok := registry[k]
	return d, ok
}

// LookupName returns the definition for a configuration name.
func LookupName(name string) (Def, error) {
	k, ok := ParseKind(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupported, name)
	}
	d, ok := registry[k]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupported, name)
	}
	return d, nil
}

// IsPiecewise reports whether a linear scale has more than two stops.
func IsPiecewise(c *Config) bool {
	if c == nil {
		return false
	}
	k, ok := c.Kind()
	if !ok || k != Linear {
		return false
	}
	return len(c.Domain) > 2 || len(c.Range) > 2
}

// UsesRangeTexture reports whether a channel samples its output from a
// colour ramp texture: an interpolated colour range on a continuous scale
// with vec4 output.
func UsesRangeTexture(c *Config, outputComponents int) bool {
	if c == nil || outputComponents != 4 || !c.isInterpolated() {
		return false
	}
	k, ok := c.Kind()
	if !ok {
		return false
	}
	d, ok := registry[k]
	return ok && d.Info().Continuous
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
