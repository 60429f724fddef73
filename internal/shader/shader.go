// Package shader assembles the WGSL of a mark: the Params uniform block,
// storage declarations, series accessors, scale functions, selection
// predicates and the mark body. It also returns the resource layout the
// bind group must follow.
//
// Assembly is pure string generation and never touches a device.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/bindgroup"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/hashtable"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/selection"
	"github.com/gogpu/markgpu/internal/series"
	"github.com/gogpu/markgpu/internal/uniform"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// ErrInvalid is wrapped by every assembly error.
var ErrInvalid = errors.New("shader: invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// DefaultGlobals is the group 0 block shared by every mark of a renderer.
const DefaultGlobals = `struct Globals {
    width: f32,
    height: f32,
    dpr: f32,
    uZero: f32,
};

@group(0) @binding(0) var<uniform> globals: Globals;
`

// ExtraKind is the resource type of an extra binding.
type ExtraKind uint8

// Extra kinds.
const (
	ExtraBuffer ExtraKind = iota + 1
	ExtraTexture
	ExtraSampler
)

// Extra is a mark-specific resource bound after the channel resources,
// such as a selection membership buffer or a glyph atlas.
type Extra struct {
	Name string
	Kind ExtraKind

	// Visibility defaults to vertex and fragment.
	Visibility gpucore.ShaderStage

	// WGSLType defaults to array<f32> for buffers and texture_2d<f32>
	// for textures.
	WGSLType string
}

func (e Extra) role() bindgroup.Role {
	switch e.Kind {
	case ExtraTexture:
		return bindgroup.RoleExtraTexture
	case ExtraSampler:
		return bindgroup.RoleExtraSampler
	}
	return bindgroup.RoleExtraBuffer
}

// SelectionExtras returns the membership buffers of multi selections.
func SelectionExtras(defs []selection.Def) []Extra {
	var out []Extra
	for _, d := range defs {
		if d.Type == channel.SelectionMulti {
			out = append(out, Extra{
				Name:       d.BufferName(),
				Kind:       ExtraBuffer,
				Visibility: gpucore.ShaderStageVertex,
				WGSLType:   "array<HashEntry>",
			})
		}
	}
	return out
}

// Input is everything assembly needs.
type Input struct {
	Channels   []channel.Named
	Uniforms   *uniform.Layout
	Series     *series.Layout
	Selections []selection.Def
	Extras     []Extra

	// Globals replaces DefaultGlobals when set.
	Globals string

	// Body is the mark-specific vertex and fragment code.
	Body string
}

// Result is the assembled shader.
type Result struct {
	Code string

	// Resources lists the bindings after the uniform buffer, in order.
	Resources []bindgroup.Resource

	// LayoutEntries is the group 1 layout, binding 0 included.
	LayoutEntries []gpucore.BindGroupLayoutEntry
}

type assembler struct {
	res      *Result
	decls    []string
	readers  []string
	fns      []string
	uniforms *uniform.Layout
}

func (a *assembler) bind(r bindgroup.Resource, vis gpucore.ShaderStage, decl string) {
	binding := uint32(len(a.res.LayoutEntries))
	a.res.Resources = append(a.res.Resources, r)
	a.res.LayoutEntries = append(a.res.LayoutEntries, gpucore.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: vis,
		Type:       r.Role.BindingType(),
	})
	a.decls = append(a.decls, fmt.Sprintf("@group(1) @binding(%d) %s", binding, decl))
}

const vertexFragment = gpucore.ShaderStageVertex | gpucore.ShaderStageFragment

// Build assembles the shader of a mark.
func Build(in Input) (*Result, error) {
	if in.Uniforms == nil {
		return nil, invalid("uniform layout is required")
	}
	a := &assembler{
		res: &Result{LayoutEntries: []gpucore.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: vertexFragment,
			Type:       gpucore.BindingTypeUniformBuffer,
		}}},
		uniforms: in.Uniforms,
	}
	irs := channel.BuildIRs(in.Channels)

	if err := a.series(irs, in.Series); err != nil {
		return nil, err
	}
	domainMaps := false
	for _, ir := range irs {
		if ir.Requirements.NeedsOrdinalRange && ir.HasScale() {
			if err := a.requireUniform(ir.Name, wgsl.RangeCountPrefix, "ordinal scale"); err != nil {
				return nil, err
			}
			elem := "vec4<f32>"
			if ir.OutputComponents == 1 {
				elem = ir.OutputScalarType.Or(wgsl.F32).String()
			}
			a.bind(bindgroup.Resource{Name: ir.Name, Role: bindgroup.RoleOrdinalRange}, gpucore.ShaderStageVertex,
				fmt.Sprintf("var<storage, read> %s%s: array<%s>;", wgsl.OrdinalRangePrefix, ir.Name, elem))
		}
	}
	for _, ir := range irs {
		if ir.Requirements.NeedsDomainMap && ir.HasScale() {
			if err := a.requireUniform(ir.Name, wgsl.DomainMapCountPrefix, "scale"); err != nil {
				return nil, err
			}
			domainMaps = true
			a.bind(bindgroup.Resource{Name: ir.Name, Role: bindgroup.RoleDomainMap}, gpucore.ShaderStageVertex,
				fmt.Sprintf("var<storage, read> %s%s: array<HashEntry>;", wgsl.DomainMapPrefix, ir.Name))
		}
	}
	for _, ir := range irs {
		if !ir.UseRangeTexture {
			continue
		}
		a.bind(bindgroup.Resource{Name: ir.Name, Role: bindgroup.RoleRangeTexture}, vertexFragment,
			fmt.Sprintf("var %s%s: texture_2d<f32>;", wgsl.RangeTexturePrefix, ir.Name))
		a.bind(bindgroup.Resource{Name: ir.Name, Role: bindgroup.RoleRangeSampler}, vertexFragment,
			fmt.Sprintf("var %s%s: sampler;", wgsl.RangeSamplerPrefix, ir.Name))
	}
	for _, e := range in.Extras {
		a.extra(e)
	}

	// Series channels first, then value channels.
	for _, pass := range []bool{true, false} {
		for _, ir := range irs {
			if (ir.SourceKind == channel.SourceSeries) != pass {
				continue
			}
			fn, err := scaledFunction(ir)
			if err != nil {
				return nil, err
			}
			a.fns = append(a.fns, fn)
		}
	}

	byName := make(map[string]channel.IR, len(irs))
	for _, ir := range irs {
		byName[ir.Name] = ir
	}
	multi := false
	for _, d := range in.Selections {
		fn, err := selection.PredicateWGSL(d, byName)
		if err != nil {
			return nil, err
		}
		a.fns = append(a.fns, fn)
		multi = multi || d.Type == channel.SelectionMulti
	}
	for _, ir := range irs {
		if fn, ok := selection.ConditionedWGSL(ir); ok {
			a.fns = append(a.fns, fn)
		}
	}

	globals := in.Globals
	if globals == "" {
		globals = DefaultGlobals
	}
	var sb strings.Builder
	sb.WriteString(globals)
	sb.WriteString("\n")
	sb.WriteString(scale.WGSL)
	sb.WriteString("\n")
	if domainMaps || multi {
		sb.WriteString(hashtable.WGSL)
		sb.WriteString("\n")
	}
	sb.WriteString(in.Uniforms.WGSLStruct("Params"))
	sb.WriteString("\n@group(1) @binding(0) var<uniform> params: Params;\n\n")
	for _, group := range [][]string{a.decls, a.readers, a.fns} {
		if len(group) == 0 {
			continue
		}
		sb.WriteString(strings.Join(group, "\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString(in.Body)
	a.res.Code = sb.String()
	return a.res, nil
}

func (a *assembler) requireUniform(name, prefix, what string) error {
	if !a.uniforms.Has(prefix + name) {
		return invalid("%s on %q requires uniform %q", what, name, prefix+name)
	}
	return nil
}

func (a *assembler) series(irs []channel.IR, layout *series.Layout) error {
	var seriesIRs []channel.IR
	for _, ir := range irs {
		if ir.SourceKind == channel.SourceSeries {
			seriesIRs = append(seriesIRs, ir)
		}
	}
	if len(seriesIRs) == 0 {
		return nil
	}
	if layout == nil || layout.Len() == 0 {
		return invalid("packed series layout is required for series channels")
	}
	for _, t := range layout.Types() {
		name := wgsl.SeriesBuffer(t)
		a.bind(bindgroup.Resource{Name: name, Role: bindgroup.RoleSeries}, gpucore.ShaderStageVertex,
			fmt.Sprintf("var<storage, read> %s: array<%s>;", name, t))
	}
	for _, ir := range seriesIRs {
		if ir.InputComponents > 1 && ir.ScalarType != wgsl.F32 {
			packedIndex := ir.ScalarType == wgsl.U32 && ir.InputComponents == 2 && ir.ScaleKind == scale.Index
			if !packedIndex {
				return invalid("channel %q does not support non-f32 vector inputs", ir.Name)
			}
		}
		e, ok := layout.Entry(ir.Name)
		if !ok {
			return invalid("packed series layout is missing entry for %q", ir.Name)
		}
		if e.Type != ir.ScalarType {
			return invalid("packed series type mismatch for %q: expected %v, got %v", ir.Name, ir.ScalarType, e.Type)
		}
		if e.Components != ir.InputComponents {
			return invalid("packed series component mismatch for %q: expected %d, got %d", ir.Name, ir.InputComponents, e.Components)
		}
		reader, err := layout.ReaderWGSL(ir.Name)
		if err != nil {
			return err
		}
		a.readers = append(a.readers, reader)
	}
	return nil
}

func (a *assembler) extra(e Extra) {
	vis := e.Visibility
	if vis == 0 {
		vis = vertexFragment
	}
	r := bindgroup.Resource{Name: e.Name, Role: e.role()}
	switch e.Kind {
	case ExtraTexture:
		t := e.WGSLType
		if t == "" {
			t = "texture_2d<f32>"
		}
		a.bind(r, vis, fmt.Sprintf("var %s: %s;", e.Name, t))
	case ExtraSampler:
		a.bind(r, vis, fmt.Sprintf("var %s: sampler;", e.Name))
	default:
		t := e.WGSLType
		if t == "" {
			t = "array<f32>"
		}
		a.bind(r, vis, fmt.Sprintf("var<storage, read> %s: %s;", e.Name, t))
	}
}

// scaledFunction emits getScaled_<name>. Channels without a scale
// function get an identity pass-through.
func scaledFunction(ir channel.IR) (string, error) {
	in := scale.EmitInput{
		Binding:      ir.Binding(),
		FunctionName: wgsl.ScaledFunctionPrefix + ir.Name,
		RawExpr:      ir.RawValueExpr,
	}
	if !ir.NeedsScaleFunction {
		def, _ := scale.Lookup(scale.Identity)
		return def.Emit(in)
	}
	if ir.Def == nil {
		return "", invalid("channel %q uses unsupported scale %q", ir.Name, ir.ScaleName)
	}
	if ir.Requirements.NeedsDomainMap {
		in.DomainMapName = wgsl.DomainMapPrefix + ir.Name
	}
	if ir.Requirements.Stops != scale.StopNone {
		dl, rl, err := ir.Def.StopLengths(in.Binding, ir.Requirements.Stops)
		if err != nil {
			return "", err
		}
		in.DomainLength, in.RangeLength = dl, rl
	}
	return ir.Def.Emit(in)
}
