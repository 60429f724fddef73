package shader

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/bindgroup"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/selection"
	"github.com/gogpu/markgpu/internal/series"
	"github.com/gogpu/markgpu/internal/uniform"
)

const pointBody = `@vertex
fn vs_main(@builtin(instance_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(getScaled_x(i), getScaled_y(i), 0.0, 1.0);
}
`

func named(name string, cfg channel.Config) channel.Named {
	return channel.Named{Name: name, Config: cfg}
}

func build(t *testing.T, channels []channel.Named, extras ...Extra) (*Result, error) {
	t.Helper()
	defs, err := selection.Collect(channels)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	layout, err := UniformLayout(channels, defs)
	if err != nil {
		t.Fatalf("UniformLayout() error = %v", err)
	}
	sl, err := series.BuildLayout(channels)
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	return Build(Input{
		Channels:   channels,
		Uniforms:   layout,
		Series:     sl,
		Selections: defs,
		Extras:     append(SelectionExtras(defs), extras...),
		Body:       pointBody,
	})
}

func pointChannels() []channel.Named {
	linear := &scale.Config{Type: "linear", Domain: []float64{0, 100}, Range: scale.Nums(0, 1)}
	return []channel.Named{
		named("uniqueId", channel.SeriesConfig([]uint32{1, 2}, 1)),
		named("x", channel.Config{Data: []float32{0, 50}, Type: channel.F32, Components: 1, Scale: linear}),
		named("y", channel.Config{Value: []float64{0.5}, Components: 1, Dynamic: true}),
		named("fill", channel.Config{
			Data:            []uint32{10, 30},
			Type:            channel.U32,
			Components:      4,
			InputComponents: 1,
			Scale:           &scale.Config{Type: "ordinal", Domain: []float64{10, 20, 30}, Range: scale.Colors("red", "green", "blue")},
		}),
	}
}

func TestBuildResourceLayout(t *testing.T) {
	res, err := build(t, pointChannels())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []bindgroup.Resource{
		{Name: "seriesF32", Role: bindgroup.RoleSeries},
		{Name: "seriesU32", Role: bindgroup.RoleSeries},
		{Name: "fill", Role: bindgroup.RoleOrdinalRange},
		{Name: "fill", Role: bindgroup.RoleDomainMap},
	}
	if len(res.Resources) != len(want) {
		t.Fatalf("Resources = %v, want %v", res.Resources, want)
	}
	for i := range want {
		if res.Resources[i] != want[i] {
			t.Errorf("Resources[%d] = %v, want %v", i, res.Resources[i], want[i])
		}
	}
	if len(res.LayoutEntries) != 5 {
		t.Fatalf("LayoutEntries = %d, want 5", len(res.LayoutEntries))
	}
	if e := res.LayoutEntries[0]; e.Type != gpucore.BindingTypeUniformBuffer {
		t.Errorf("binding 0 type = %v, want uniform", e.Type)
	}
	for i, e := range res.LayoutEntries[1:] {
		if e.Binding != uint32(i+1) || e.Type != gpucore.BindingTypeReadOnlyStorageBuffer {
			t.Errorf("LayoutEntries[%d] = %+v", i+1, e)
		}
	}
}

func TestBuildCode(t *testing.T) {
	res, err := build(t, pointChannels())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, want := range []string{
		"@group(0) @binding(0) var<uniform> globals: Globals;",
		"fn scaleLinear(",
		"struct HashEntry {",
		"@group(1) @binding(0) var<uniform> params: Params;",
		"    u_y: f32,",
		"    uDomain_x: array<vec4<f32>, 2>,",
		"    uRangeCount_fill: f32,",
		"@group(1) @binding(1) var<storage, read> seriesF32: array<f32>;",
		"@group(1) @binding(2) var<storage, read> seriesU32: array<u32>;",
		"@group(1) @binding(3) var<storage, read> range_fill: array<vec4<f32>>;",
		"@group(1) @binding(4) var<storage, read> domainMap_fill: array<HashEntry>;",
		"fn read_x(i: u32) -> f32 {",
		"fn read_fill(i: u32) -> u32 {",
		"fn getScaled_x(i: u32) -> f32 {",
		"fn getScaled_y(i: u32) -> f32 {\n    return params.u_y;\n}",
		"fn getScaled_fill(i: u32) -> vec4<f32> {",
		"hashLookup(&domainMap_fill, raw, arrayLength(&domainMap_fill))",
		"fn vs_main(",
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("Code missing %q", want)
		}
	}
	// Series functions precede value functions.
	if strings.Index(res.Code, "fn getScaled_fill") > strings.Index(res.Code, "fn getScaled_y") {
		t.Error("value channel function emitted before series channel function")
	}
}

func TestBuildRangeTexture(t *testing.T) {
	channels := []channel.Named{
		named("x", channel.SeriesConfig([]float32{0}, 1)),
		named("y", channel.SeriesConfig([]float32{0}, 1)),
		named("fill", channel.Config{
			Data:            []float32{0.5},
			Type:            channel.F32,
			Components:      4,
			InputComponents: 1,
			Scale:           &scale.Config{Type: "linear", Domain: []float64{0, 1}, Range: scale.Colors("white", "black")},
		}),
	}
	res, err := build(t, channels)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	n := len(res.LayoutEntries)
	tex, smp := res.LayoutEntries[n-2], res.LayoutEntries[n-1]
	if tex.Type != gpucore.BindingTypeSampledTexture || smp.Type != gpucore.BindingTypeSampler {
		t.Errorf("ramp bindings = %+v, %+v", tex, smp)
	}
	if tex.Visibility != gpucore.ShaderStageVertex|gpucore.ShaderStageFragment {
		t.Errorf("ramp visibility = %v", tex.Visibility)
	}
	for _, want := range []string{
		"var uRangeTexture_fill: texture_2d<f32>;",
		"var uRangeSampler_fill: sampler;",
		"getInterpolatedColor(uRangeTexture_fill, uRangeSampler_fill, unitValue)",
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("Code missing %q", want)
		}
	}
	if strings.Contains(res.Code, "struct HashEntry") {
		t.Error("hash table helpers included without domain maps or multi selections")
	}
}

func TestBuildSelections(t *testing.T) {
	channels := pointChannels()
	channels[2].Config.Conditions = []channel.Condition{{
		When:  channel.Predicate{Selection: "picked", Type: channel.SelectionMulti},
		Value: []float64{1},
	}}
	res, err := build(t, channels, Extra{Name: "atlas", Kind: ExtraTexture}, Extra{Name: "atlasSampler", Kind: ExtraSampler})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	n := len(res.Resources)
	tail := res.Resources[n-3:]
	want := []bindgroup.Resource{
		{Name: "selection_picked", Role: bindgroup.RoleExtraBuffer},
		{Name: "atlas", Role: bindgroup.RoleExtraTexture},
		{Name: "atlasSampler", Role: bindgroup.RoleExtraSampler},
	}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("extra %d = %v, want %v", i, tail[i], want[i])
		}
	}
	if v := res.LayoutEntries[n-2].Visibility; v != gpucore.ShaderStageVertex {
		t.Errorf("selection buffer visibility = %v, want vertex", v)
	}
	for _, want := range []string{
		"var<storage, read> selection_picked: array<HashEntry>;",
		"var atlas: texture_2d<f32>;",
		"fn isSelected_picked(i: u32) -> bool {",
		"fn getConditioned_y(i: u32) -> f32 {",
		"if (isSelected_picked(i)) {\n        return 1.0;\n    }",
		"    uSelectionCount_picked: u32,",
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("Code missing %q", want)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	channels := []channel.Named{named("x", channel.SeriesConfig([]float32{1}, 1))}
	layout, err := UniformLayout(channels, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(Input{Channels: channels, Uniforms: layout})
	if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), "packed series layout is required") {
		t.Errorf("Build(no layout) error = %v", err)
	}

	other, _ := series.BuildLayout([]channel.Named{named("y", channel.SeriesConfig([]float32{1}, 1))})
	_, err = Build(Input{Channels: channels, Uniforms: layout, Series: other})
	if err == nil || !strings.Contains(err.Error(), `missing entry for "x"`) {
		t.Errorf("Build(wrong layout) error = %v", err)
	}

	ordinal := []channel.Named{named("fill", channel.Config{
		Value: []float64{1}, Type: channel.U32, Components: 1,
		Scale: &scale.Config{Type: "ordinal", Domain: []float64{0, 1}, Range: scale.Nums(3, 4)},
	})}
	var b uniform.Builder
	empty, _ := b.Build()
	_, err = Build(Input{Channels: ordinal, Uniforms: empty})
	if err == nil || !strings.Contains(err.Error(), `requires uniform "uRangeCount_fill"`) {
		t.Errorf("Build(missing count uniform) error = %v", err)
	}

	if _, err := Build(Input{}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Build(no uniforms) error = %v", err)
	}
}

func TestCompile(t *testing.T) {
	res, err := build(t, pointChannels())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	words, err := Compile(res.Code)
	if err != nil {
		// naga does not cover every WGSL feature yet.
		t.Skipf("naga cannot compile the generated shader: %v", err)
	}
	if words[0] != SPIRVMagic {
		t.Errorf("magic = 0x%08X, want 0x%08X", words[0], SPIRVMagic)
	}

	before := CacheStats().Hits
	again, err := Compile(res.Code)
	if err != nil {
		t.Fatalf("Compile(cached) error = %v", err)
	}
	if &again[0] != &words[0] {
		t.Error("second Compile() of the same source did not reuse the cached SPIR-V")
	}
	if CacheStats().Hits != before+1 {
		t.Errorf("cache hits = %d, want %d", CacheStats().Hits, before+1)
	}
}
