package channel

import (
	"strings"

	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// Source tells where a channel's raw values come from.
type Source uint8

// Sources. Analysis distinguishes series, value and missing; the IR
// splits values into uniform and literal.
const (
	SourceMissing Source = iota
	SourceSeries
	SourceValue
	SourceUniform
	SourceLiteral
)

func (s Source) String() string {
	switch s {
	case SourceSeries:
		return "series"
	case SourceValue:
		return "value"
	case SourceUniform:
		return "uniform"
	case SourceLiteral:
		return "literal"
	}
	return "missing"
}

// Analysis is the normalized metadata of one channel, shared by validation
// and code generation.
type Analysis struct {
	Name   string
	Config Config
	Source Source

	// ScaleName is the configured scale type, "identity" when unset.
	ScaleName string
	ScaleKind scale.Kind
	// Def is nil for an unsupported scale.
	Def scale.Def

	OutputComponents int
	InputComponents  int
	ScalarType       ScalarType
	OutputScalarType ScalarType

	UseRangeTexture    bool
	Piecewise          bool
	NeedsScaleFunction bool
	Requirements       scale.Requirements

	AllowsScalarToVector bool
	Continuous           bool
	RangeIsFunction      bool
	RangeIsColor         bool
	Interpolated         bool
}

// Analyze derives component counts, types and resource needs of a channel.
func Analyze(name string, cfg Config) Analysis {
	a := Analysis{Name: name, Config: cfg, ScaleName: "identity"}
	switch {
	case cfg.IsSeries():
		a.Source = SourceSeries
	case cfg.IsValue() || cfg.Default != nil:
		a.Source = SourceValue
	}

	sc := cfg.Scale
	if sc != nil && sc.Type != "" {
		a.ScaleName = sc.Type
	}
	if def, err := scale.LookupName(a.ScaleName); err == nil {
		a.Def = def
		a.ScaleKind = def.Kind()
	}

	a.OutputComponents = cfg.Components
	if a.OutputComponents == 0 {
		a.OutputComponents = 1
	}
	a.ScalarType = cfg.Type.Or(F32)

	identity := a.ScaleKind == scale.Identity && a.Def != nil
	a.InputComponents = cfg.InputComponents
	if a.InputComponents == 0 {
		if a.Source == SourceSeries || identity {
			a.InputComponents = a.OutputComponents
		} else {
			a.InputComponents = 1
		}
	}

	var info scale.Info
	if a.Def != nil {
		info = a.Def.Info()
	}
	a.OutputScalarType = F32
	if a.OutputComponents == 1 && a.Def != nil {
		a.OutputScalarType = info.OutputType(a.ScalarType)
	}

	if sc != nil {
		a.RangeIsFunction = sc.Interpolator != nil
		a.RangeIsColor = scale.IsColorRange(sc.Range)
		a.Interpolated = a.RangeIsFunction || a.RangeIsColor || sc.Interpolate != ""
	}
	a.Continuous = info.Continuous
	a.UseRangeTexture = scale.UsesRangeTexture(sc, a.OutputComponents)
	a.Piecewise = scale.IsPiecewise(sc)
	a.Requirements = info.Requirements(a.Piecewise)
	a.NeedsScaleFunction = a.OutputComponents == 1 || !identity || a.Piecewise || a.UseRangeTexture
	a.AllowsScalarToVector = a.OutputComponents > 1 && a.InputComponents == 1 &&
		!identity && info.AllowsVector(a.Interpolated)
	return a
}

// Binding returns the view of the analysis the scale package works with.
func (a Analysis) Binding() scale.Binding {
	return scale.Binding{
		Name:             a.Name,
		Scale:            a.Config.Scale,
		InputType:        a.ScalarType,
		InputComponents:  a.InputComponents,
		OutputComponents: a.OutputComponents,
		OutputType:       a.OutputScalarType,
		Piecewise:        a.Piecewise,
		UseRangeTexture:  a.UseRangeTexture,
	}
}

// HasScale reports whether the channel uses a non-identity scale.
func (a Analysis) HasScale() bool {
	return a.Def != nil && a.ScaleKind != scale.Identity
}

// IR is the per-channel description used by shader generation and
// resource binding.
type IR struct {
	Analysis

	// SourceKind is SourceSeries, SourceUniform or SourceLiteral.
	SourceKind Source

	// RawValueExpr yields the raw, unscaled value in WGSL.
	RawValueExpr string
}

// BuildIR returns the IR of a channel, or false when the channel has
// neither data nor value. Missing sources are reported later by the
// resource that needs them.
func BuildIR(name string, cfg Config) (IR, bool) {
	a := Analyze(name, cfg)
	ir := IR{Analysis: a}
	switch a.Source {
	case SourceMissing:
		return IR{}, false
	case SourceSeries:
		ir.SourceKind = SourceSeries
		ir.RawValueExpr = wgsl.ReadFunctionPrefix + name + "(i)"
		return ir, true
	}
	if cfg.Dynamic {
		ir.SourceKind = SourceUniform
		ir.RawValueExpr = "params." + wgsl.ValuePrefix + name
		return ir, true
	}
	value := cfg.Value
	if value == nil {
		value = cfg.Default
	}
	ir.SourceKind = SourceLiteral
	ir.RawValueExpr = FormatLiteral(value, a.ScalarType, a.InputComponents)
	return ir, true
}

// BuildIRs returns the IR of every channel that has a source, in order.
func BuildIRs(channels []Named) []IR {
	out := make([]IR, 0, len(channels))
	for _, ch := range channels {
		if ir, ok := BuildIR(ch.Name, ch.Config); ok {
			out = append(out, ir)
		}
	}
	return out
}

// FormatLiteral formats values as a WGSL constant of the given type. Vectors
// are truncated or zero-padded to components.
func FormatLiteral(values []float64, t ScalarType, components int) string {
	if components <= 1 {
		v := 0.0
		if len(values) > 0 {
			v = values[0]
		}
		return wgsl.FormatScalar(v, t)
	}
	parts := make([]string, components)
	for i := range parts {
		v := 0.0
		if i < len(values) {
			v = values[i]
		}
		parts[i] = wgsl.FormatScalar(v, t)
	}
	return wgsl.VecType(t.Or(F32), components) + "(" + strings.Join(parts, ", ") + ")"
}
