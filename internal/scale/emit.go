package scale

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/markgpu/internal/wgsl"
)

// WGSL is the helper library called by generated scale functions.
//
//go:embed shaders/scales.wgsl
var WGSL string

// fnWriter assembles one generated function body.
type fnWriter struct {
	sb strings.Builder
}

func newFn(name, ret string) *fnWriter {
	w := &fnWriter{}
	fmt.Fprintf(&w.sb, "fn %s(i: u32) -> %s {\n", name, ret)
	return w
}

func (w *fnWriter) line(format string, args ...any) {
	w.sb.WriteString("    ")
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *fnWriter) done() string {
	w.sb.WriteString("}\n")
	return w.sb.String()
}

func param(prefix, name string) string {
	return "params." + prefix + name
}

func packed2(prefix, name string) string {
	return "readPacked2(" + param(prefix, name) + ")"
}

// f32Expr casts a scalar expression to f32.
func f32Expr(raw string, t wgsl.ScalarType) string {
	if t.Or(wgsl.F32) == wgsl.F32 {
		return raw
	}
	return "f32(" + raw + ")"
}

// u32Expr casts a scalar expression to u32.
func u32Expr(raw string, t wgsl.ScalarType) string {
	if t == wgsl.U32 {
		return raw
	}
	return "u32(f32(" + raw + "))"
}

func returnType(in EmitInput) string {
	if in.OutputComponents == 1 {
		return in.OutputType.Or(wgsl.F32).String()
	}
	return wgsl.VecType(wgsl.F32, in.OutputComponents)
}

// zeroValue is the fallback of discrete lookups that miss.
func zeroValue(in EmitInput) string {
	if in.OutputComponents > 1 {
		return wgsl.VecType(wgsl.F32, in.OutputComponents) + "(0.0)"
	}
	switch in.OutputType {
	case wgsl.U32:
		return "0u"
	case wgsl.I32:
		return "0i"
	}
	return "0.0"
}

// stopElement reads stop k of a range array: the .x lane for scalar
// outputs, the whole vec4 otherwise.
func stopElement(in EmitInput, index string) string {
	ref := param(wgsl.RangePrefix, in.Name) + "[" + index + "]"
	if in.OutputComponents == 1 {
		return ref + ".x"
	}
	return ref
}

// rampReturn samples the colour ramp with a unit value.
func rampReturn(w *fnWriter, name, unit string) {
	w.line("let unitValue = clamp(%s, 0.0, 1.0);", unit)
	w.line("let rgb = getInterpolatedColor(%s%s, %s%s, unitValue);",
		wgsl.RangeTexturePrefix, name, wgsl.RangeSamplerPrefix, name)
	w.line("return vec4<f32>(rgb, 1.0);")
}

// continuousApply returns the call that maps v through a continuous scale.
func continuousApply(k Kind, name, v string) string {
	domain := packed2(wgsl.DomainPrefix, name)
	rng := packed2(wgsl.RangePrefix, name)
	switch k {
	case Log:
		return fmt.Sprintf("scaleLog(%s, %s, %s, %s)", v, domain, rng, param("uBase_", name))
	case Pow, Sqrt:
		return fmt.Sprintf("scalePow(%s, %s, %s, %s)", v, domain, rng, param("uExponent_", name))
	case Symlog:
		return fmt.Sprintf("scaleSymlog(%s, %s, %s, %s)", v, domain, rng, param("uConstant_", name))
	}
	return fmt.Sprintf("scaleLinear(%s, %s, %s)", v, domain, rng)
}

func emitContinuous(in EmitInput, k Kind) string {
	w := newFn(in.FunctionName, returnType(in))
	w.line("var v = %s;", f32Expr(in.RawExpr, in.InputType))
	cfg := in.Scale
	if cfg != nil && cfg.Clamp {
		w.line("v = clampToDomain(v, %s);", packed2(wgsl.DomainPrefix, in.Name))
	}
	w.line("v = %s;", continuousApply(k, in.Name, "v"))
	if in.UseRangeTexture {
		rampReturn(w, in.Name, "v")
		return w.done()
	}
	if cfg != nil && cfg.Round {
		w.line("v = roundAwayFromZero(v);")
	}
	w.line("return v;")
	return w.done()
}

func emitPiecewise(in EmitInput) string {
	w := newFn(in.FunctionName, returnType(in))
	domain := param(wgsl.DomainPrefix, in.Name)
	rng := param(wgsl.RangePrefix, in.Name)
	w.line("const DOMAIN_LEN: u32 = %du;", in.DomainLength)
	w.line("var value = %s;", f32Expr(in.RawExpr, in.InputType))
	if in.Scale != nil && in.Scale.Clamp {
		w.line("let lo = %s[0].x;", domain)
		w.line("let hi = %s[DOMAIN_LEN - 1u].x;", domain)
		w.line("value = clamp(value, min(lo, hi), max(lo, hi));")
	}
	w.line("var slot: u32 = 0u;")
	w.line("for (var k: u32 = 1u; k + 1u < DOMAIN_LEN; k = k + 1u) {")
	w.line("    if (value >= %s[k].x) {", domain)
	w.line("        slot = k;")
	w.line("    }")
	w.line("}")
	w.line("let d0 = %s[slot].x;", domain)
	w.line("let d1 = %s[slot + 1u].x;", domain)
	w.line("let denom = d1 - d0;")
	w.line("let t = select(0.0, (value - d0) / denom, denom != 0.0);")
	if in.UseRangeTexture {
		w.line("let unit = mix(%s[slot].x, %s[slot + 1u].x, t);", rng, rng)
		rampReturn(w, in.Name, "unit")
		return w.done()
	}
	if in.OutputComponents == 1 {
		w.line("var out = mix(%s[slot].x, %s[slot + 1u].x, t);", rng, rng)
		if in.Scale != nil && in.Scale.Round {
			w.line("out = roundAwayFromZero(out);")
		}
		w.line("return out;")
		return w.done()
	}
	w.line("return mix(%s[slot], %s[slot + 1u], t);", rng, rng)
	return w.done()
}

func emitThreshold(in EmitInput) string {
	w := newFn(in.FunctionName, returnType(in))
	w.line("let value = %s;", f32Expr(in.RawExpr, in.InputType))
	w.line("var slot: u32 = 0u;")
	w.line("for (var k: u32 = 0u; k < %du; k = k + 1u) {", in.DomainLength)
	w.line("    if (value >= %s[k].x) {", param(wgsl.DomainPrefix, in.Name))
	w.line("        slot = k + 1u;")
	w.line("    }")
	w.line("}")
	w.line("return %s;", stopElement(in, "slot"))
	return w.done()
}

func emitQuantize(in EmitInput) string {
	w := newFn(in.FunctionName, returnType(in))
	w.line("const RANGE_LEN: u32 = %du;", in.RangeLength)
	w.line("let value = %s;", f32Expr(in.RawExpr, in.InputType))
	w.line("let domain = %s;", packed2(wgsl.DomainPrefix, in.Name))
	w.line("let span = domain.y - domain.x;")
	w.line("let t = clamp(select(0.0, (value - domain.x) / span, span != 0.0), 0.0, 1.0);")
	w.line("let slot = min(RANGE_LEN - 1u, u32(floor(t * f32(RANGE_LEN))));")
	w.line("return %s;", stopElement(in, "slot"))
	return w.done()
}

// domainMapLookup emits the sparse-to-dense index remap. onMiss is the
// statement executed when the key is absent.
func domainMapLookup(w *fnWriter, in EmitInput, onMiss string) {
	w.line("var index = raw;")
	w.line("if (u32(%s) > 0u) {", param(wgsl.DomainMapCountPrefix, in.Name))
	w.line("    let mapped = hashLookup(&%s, raw, arrayLength(&%s));", in.DomainMapName, in.DomainMapName)
	w.line("    if (mapped == HASH_NOT_FOUND) {")
	w.line("        %s", onMiss)
	w.line("    }")
	w.line("    index = mapped;")
	w.line("}")
}

func bandParams(name string) string {
	return strings.Join([]string{
		param("uPaddingInner_", name),
		param("uPaddingOuter_", name),
		param("uAlign_", name),
		param("uBand_", name),
	}, ", ")
}

func emitBand(in EmitInput) string {
	w := newFn(in.FunctionName, "f32")
	w.line("let raw = %s;", u32Expr(in.RawExpr, in.InputType))
	if in.DomainMapName != "" {
		domainMapLookup(w, in, "return "+packed2(wgsl.RangePrefix, in.Name)+".x;")
	} else {
		w.line("let index = raw;")
	}
	w.line("var v = scaleBand(index, %s, %s, %s);",
		packed2(wgsl.DomainPrefix, in.Name), packed2(wgsl.RangePrefix, in.Name), bandParams(in.Name))
	if in.Scale != nil && in.Scale.Round {
		w.line("v = roundAwayFromZero(v);")
	}
	w.line("return v;")
	return w.done()
}

func emitIndex(in EmitInput) string {
	w := newFn(in.FunctionName, "f32")
	domain := "readPacked3(" + param(wgsl.DomainPrefix, in.Name) + ")"
	rng := packed2(wgsl.RangePrefix, in.Name)
	if in.InputComponents == 2 {
		w.line("var v = scaleBandHpU(%s, %s, %s, %s);", in.RawExpr, domain, rng, bandParams(in.Name))
	} else {
		w.line("var v = scaleBandHp(%s, %s, %s, %s);", u32Expr(in.RawExpr, in.InputType), domain, rng, bandParams(in.Name))
	}
	if in.Scale != nil && in.Scale.Round {
		w.line("v = roundAwayFromZero(v);")
	}
	w.line("return v;")
	return w.done()
}

func emitOrdinal(in EmitInput) string {
	zero := zeroValue(in)
	w := newFn(in.FunctionName, returnType(in))
	w.line("let raw = %s;", u32Expr(in.RawExpr, in.InputType))
	w.line("let count = u32(%s);", param(wgsl.RangeCountPrefix, in.Name))
	w.line("if (count == 0u) {")
	w.line("    return %s;", zero)
	w.line("}")
	if in.DomainMapName != "" {
		domainMapLookup(w, in, "return "+zero+";")
	} else {
		w.line("let index = raw;")
	}
	w.line("return %s%s[min(index, count - 1u)];", wgsl.OrdinalRangePrefix, in.Name)
	return w.done()
}

func emitIdentity(in EmitInput) string {
	var ret string
	if in.OutputComponents == 1 {
		ret = in.OutputType.Or(in.InputType.Or(wgsl.F32)).String()
	} else {
		ret = wgsl.VecType(in.InputType.Or(wgsl.F32), in.OutputComponents)
	}
	return fmt.Sprintf("fn %s(i: u32) -> %s {\n    return %s;\n}\n", in.FunctionName, ret, in.RawExpr)
}
