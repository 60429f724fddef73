package channel

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/markgpu/internal/scale"
)

// Errors returned by channel resolution.
var (
	ErrUnknownChannel = errors.New("channel: unknown channel")
	ErrInvalid        = errors.New("channel: invalid configuration")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Context describes the channels a mark accepts.
type Context struct {
	// Order lists every accepted channel in declaration order.
	Order []string

	// Specs holds fixed type and component expectations.
	Specs map[string]Spec

	// Defaults are merged under the caller's configuration.
	Defaults map[string]Config
}

func (c *Context) spec(name string) *Spec {
	if s, ok := c.Specs[name]; ok {
		return &s
	}
	return nil
}

func (c *Context) known(name string) bool {
	for _, n := range c.Order {
		if n == name {
			return true
		}
	}
	return false
}

// Normalize merges defaults into the configured channels, validates them
// and returns the result in declaration order. Optional channels with
// neither data nor value are dropped.
func Normalize(channels map[string]Config, ctx Context) ([]Named, error) {
	for name := range channels {
		if !ctx.known(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
		}
	}
	out := make([]Named, 0, len(ctx.Order))
	for _, name := range ctx.Order {
		cfg, keep, err := normalizeOne(name, channels, ctx)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, Named{Name: name, Config: cfg})
		}
	}
	return out, nil
}

func normalizeOne(name string, channels map[string]Config, ctx Context) (Config, bool, error) {
	user, hasUser := channels[name]
	merged := merge(ctx.Defaults[name], user)
	spec := ctx.spec(name)

	if merged.Components == 0 {
		merged.Components = 1
	}
	if merged.IsSeries() {
		if hasUser && (user.Value != nil || user.Default != nil) {
			return Config{}, false, invalid("channel %q must not specify both data and value", name)
		}
		if merged.InputComponents == 0 {
			merged.InputComponents = merged.Components
		}
		if merged.Type == 0 {
			merged.Type = dataType(merged.Data)
		}
		merged.Value, merged.Default = nil, nil
	} else if merged.Value == nil {
		switch {
		case merged.Default != nil:
			merged.Value = merged.Default
		case spec != nil && spec.Default != nil:
			merged.Value = spec.Default
		}
	}
	if spec != nil && spec.Optional && !merged.IsSeries() && !merged.IsValue() {
		return Config{}, false, nil
	}
	if err := Resolve(name, merged, spec); err != nil {
		return Config{}, false, err
	}
	return merged, true, nil
}

// Resolve validates one channel against its optional spec. It fails on the
// first problem found.
func Resolve(name string, cfg Config, spec *Spec) error {
	if spec != nil && spec.Components != 0 && cfg.Components != spec.Components {
		return invalid("channel %q must use %d components", name, spec.Components)
	}

	a := Analyze(name, cfg)
	if a.Def == nil {
		return fmt.Errorf("%w: channel %q uses unsupported scale %q", scale.ErrUnsupported, name, a.ScaleName)
	}
	if err := checkTypeOverride(name, cfg, spec, a); err != nil {
		return err
	}
	if spec != nil && spec.Optional && !cfg.IsSeries() && !cfg.IsValue() {
		return nil
	}
	if err := checkSource(name, cfg); err != nil {
		return err
	}
	if !validComponents(cfg.Components) {
		return invalid("invalid component count for %q", name)
	}
	if !validComponents(cfg.InputComponents) {
		return invalid("invalid input component count for %q", name)
	}
	if err := checkScale(name, cfg, a); err != nil {
		return err
	}
	if err := a.Def.Validate(a.Binding()); err != nil {
		return fmt.Errorf("channel %q: %w", name, err)
	}
	if err := checkValue(name, cfg, a); err != nil {
		return err
	}
	return checkConditions(name, cfg, a)
}

func validComponents(n int) bool {
	return n == 0 || n == 1 || n == 2 || n == 4
}

// checkTypeOverride allows u32 data on f32 channels that feed band, index
// or vector ordinal scales.
func checkTypeOverride(name string, cfg Config, spec *Spec, a Analysis) error {
	if spec == nil || spec.Type == 0 || cfg.Type == 0 || cfg.Type == spec.Type {
		return nil
	}
	if spec.Type == F32 && cfg.Type == U32 {
		switch a.ScaleKind {
		case scale.Band, scale.Index:
			return nil
		case scale.Ordinal:
			if a.OutputComponents > 1 {
				return nil
			}
		}
	}
	return invalid("channel %q must use type %q", name, spec.Type)
}

func checkSource(name string, cfg Config) error {
	if cfg.IsSeries() {
		n := DataLength(cfg.Data)
		if n < 0 {
			return invalid("channel %q has unsupported data type %T", name, cfg.Data)
		}
		if cfg.Type == 0 {
			return invalid("missing type for channel %q", name)
		}
		if cfg.IsValue() {
			return invalid("channel %q must not specify both data and value", name)
		}
		return nil
	}
	if !cfg.IsValue() {
		return invalid("channel %q must specify either data or value", name)
	}
	return nil
}

// checkScale applies the input, output and range rules shared by every
// scale family.
func checkScale(name string, cfg Config, a Analysis) error {
	info := a.Def.Info()
	identity := a.ScaleKind == scale.Identity
	allowsVector := info.AllowsVector(a.Interpolated)
	scalarToVector := allowsVector && a.AllowsScalarToVector

	vectorOK := a.OutputComponents == 1
	if !vectorOK {
		if identity {
			vectorOK = a.InputComponents == a.OutputComponents
		} else {
			vectorOK = allowsVector
		}
	}
	if !vectorOK {
		return invalid("channel %q uses vector components but scale %q only supports scalars", name, a.ScaleName)
	}

	sc := cfg.Scale
	if a.RangeIsFunction {
		if !a.Continuous {
			return invalid("channel %q only supports function ranges with continuous scales", name)
		}
		if a.OutputComponents != 4 {
			return invalid("channel %q requires vec4 outputs when using function ranges", name)
		}
	}
	if sc != nil && sc.Interpolate != "" {
		if !a.RangeIsColor {
			return invalid("channel %q requires a color range when interpolate is set", name)
		}
		if !a.Continuous {
			return invalid("channel %q only supports color interpolation with continuous scales", name)
		}
		if a.OutputComponents != 4 {
			return invalid("channel %q requires vec4 outputs when interpolate is set", name)
		}
	}
	if a.Continuous && !a.RangeIsFunction && a.RangeIsColor && a.OutputComponents != 4 {
		return invalid("channel %q requires vec4 outputs when using color ranges", name)
	}

	switch info.Input {
	case scale.InputNumeric:
		if !a.ScalarType.Valid() {
			return invalid("channel %q requires numeric input for %q scale", name, a.ScaleName)
		}
	case scale.InputU32:
		if a.ScalarType != U32 {
			return invalid("channel %q requires u32 input for %q scale", name, a.ScaleName)
		}
	}

	if a.OutputComponents > 1 && a.ScalarType != F32 && !scalarToVector {
		return invalid("only f32 vectors are supported for %q right now", name)
	}
	packedScalar := a.InputComponents == 2 && a.OutputComponents == 1 &&
		a.ScalarType == U32 && a.ScaleKind == scale.Index
	if a.InputComponents > 1 && a.ScalarType != F32 && !packedScalar {
		return invalid("only f32 vectors are supported for %q input data", name)
	}
	if a.InputComponents != a.OutputComponents && !scalarToVector && !packedScalar {
		return invalid("channel %q only supports mismatched input/output components when mapping scalars to vectors", name)
	}
	return nil
}

// checkValue enforces integer constants for categorical scales.
func checkValue(name string, cfg Config, a Analysis) error {
	if !cfg.IsValue() {
		return nil
	}
	var label string
	switch a.ScaleKind {
	case scale.Ordinal:
		label = "ordinal"
	case scale.Band:
		label = "band"
	default:
		return nil
	}
	if len(cfg.Value) != 1 {
		return invalid("%s scale on %q requires scalar integer values", label, name)
	}
	if v := cfg.Value[0]; v != math.Trunc(v) || math.IsInf(v, 0) {
		return invalid("%s scale on %q requires integer values", label, name)
	}
	return nil
}

func checkConditions(name string, cfg Config, a Analysis) error {
	for i, c := range cfg.Conditions {
		if c.When.Selection == "" {
			return invalid("condition %d on %q must name a selection", i, name)
		}
		if c.When.Type == 0 {
			return invalid("condition %d on %q must set a selection type", i, name)
		}
		if len(c.Value) != a.OutputComponents {
			return invalid("condition %d on %q expects %d values, got %d", i, name, a.OutputComponents, len(c.Value))
		}
	}
	return nil
}
