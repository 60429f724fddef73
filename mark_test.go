package markgpu

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/selection"
)

const pointBody = `@vertex
fn vs_main(@builtin(instance_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(getScaled_x(i), getScaled_y(i), 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

func pointChannels() []NamedConfig {
	return []NamedConfig{
		{Name: "uniqueId", Config: SeriesChannel([]uint32{1, 2}, 1)},
		{Name: "x", Config: ChannelConfig{
			Data:  []float32{0, 50},
			Scale: &ScaleConfig{Type: "linear", Domain: []float64{0, 100}},
		}},
		{Name: "y", Config: ChannelConfig{Value: []float64{0.5}, Dynamic: true}},
		{Name: "fill", Config: ChannelConfig{
			Data:            []uint32{10, 30},
			Components:      4,
			InputComponents: 1,
			Scale:           &ScaleConfig{Type: "ordinal", Domain: []float64{10, 20, 30}, Range: Colors("red", "green", "blue")},
			Conditions: []Condition{{
				When:  Predicate{Selection: "picked", Type: SelectionMulti},
				Value: []float64{1, 1, 0, 1},
			}},
		}},
	}
}

func newTestMark(t *testing.T, dev *gpucore.MemoryDevice, channels []NamedConfig, opts ...MarkOption) *Mark {
	t.Helper()
	m, err := NewMark(RendererGlobals{Device: dev, DefaultRanges: ViewportRanges(800, 600)}, channels, InferCount,
		append([]MarkOption{WithShaderBody(pointBody)}, opts...)...)
	if err != nil {
		t.Fatalf("NewMark() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// uniformF32 reads element elem of a Params field. Uniform arrays use a
// 16-byte stride.
func uniformF32(t *testing.T, dev *gpucore.MemoryDevice, m *Mark, field string, elem int) float32 {
	t.Helper()
	off, ok := m.uniforms.Layout().Offset(field)
	if !ok {
		t.Fatalf("uniform %q not in layout", field)
	}
	buf, _ := dev.Buffer(m.UniformBuffer())
	return math.Float32frombits(binary.LittleEndian.Uint32(buf.Data[off+16*elem:]))
}

func TestNewMark(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, pointChannels())

	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
	bg, ok := dev.BindGroup(m.BindGroup())
	if !ok {
		t.Fatal("BindGroup() is not a live bind group")
	}
	if len(bg.Entries) != len(m.LayoutEntries()) {
		t.Errorf("bind group has %d entries, layout %d", len(bg.Entries), len(m.LayoutEntries()))
	}
	if bg.Entries[0].Buffer != m.UniformBuffer() {
		t.Errorf("binding 0 = %+v, want Params buffer %d", bg.Entries[0], m.UniformBuffer())
	}
	if len(m.ResourceLayout()) != len(m.LayoutEntries())-1 {
		t.Errorf("ResourceLayout() = %v", m.ResourceLayout())
	}

	for _, want := range []string{
		"fn getScaled_x(i: u32) -> f32 {",
		"fn getConditioned_fill(i: u32) -> vec4<f32> {",
		"fn isSelected_picked(i: u32) -> bool {",
		"fn vs_main(",
	} {
		if !strings.Contains(m.ShaderCode(), want) {
			t.Errorf("ShaderCode() missing %q", want)
		}
	}

	// x has no range: the viewport default applies.
	if got := uniformF32(t, dev, m, "uRange_x", 1); got != 800 {
		t.Errorf("uRange_x[1] = %v, want 800", got)
	}
	if got := uniformF32(t, dev, m, "u_y", 0); got != 0.5 {
		t.Errorf("u_y = %v, want 0.5", got)
	}
}

func TestNewMarkErrors(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	globals := RendererGlobals{Device: dev}

	if _, err := NewMark(RendererGlobals{}, nil, InferCount); !errors.Is(err, ErrNoDevice) {
		t.Errorf("NewMark(no device) error = %v", err)
	}

	dup := []NamedConfig{
		{Name: "x", Config: ValueChannel(1)},
		{Name: "x", Config: ValueChannel(2)},
	}
	if _, err := NewMark(globals, dup, InferCount); !errors.Is(err, channel.ErrInvalid) {
		t.Errorf("NewMark(duplicate) error = %v", err)
	}

	ctx := ChannelContext{Order: []string{"x"}}
	extra := []NamedConfig{{Name: "y", Config: ValueChannel(1)}}
	if _, err := NewMark(globals, extra, InferCount, WithChannelContext(ctx)); !errors.Is(err, channel.ErrUnknownChannel) {
		t.Errorf("NewMark(unknown channel) error = %v", err)
	}

	noID := pointChannels()[1:]
	if _, err := NewMark(globals, noID, InferCount); !errors.Is(err, selection.ErrMissingUniqueID) {
		t.Errorf("NewMark(no uniqueId) error = %v", err)
	}

	mismatch := []NamedConfig{
		{Name: "x", Config: SeriesChannel([]float32{1, 2}, 1)},
		{Name: "y", Config: SeriesChannel([]float32{1, 2, 3}, 1)},
	}
	_, err := NewMark(globals, mismatch, InferCount)
	if err == nil || !strings.Contains(err.Error(), `"y"`) {
		t.Errorf("NewMark(count mismatch) error = %v", err)
	}

	scaleErrors := []struct {
		name string
		cfg  ChannelConfig
		want string
	}{
		{"empty band domain", ChannelConfig{Data: []uint32{1, 2}, Type: U32, Components: 1, Scale: &ScaleConfig{Type: "band", Domain: []float64{}}}, "non-empty domain"},
		{"empty ordinal domain", ChannelConfig{Data: []uint32{1, 2}, Type: U32, Components: 1, Scale: &ScaleConfig{Type: "ordinal", Domain: []float64{}, Range: Nums(1)}}, "non-empty domain"},
		{"vec2 ordinal", ChannelConfig{Data: []uint32{1, 2}, Type: U32, Components: 2, InputComponents: 1, Scale: &ScaleConfig{Type: "ordinal", Domain: []float64{1, 2}, Range: Nums(1, 2)}}, "only support scalars or vec4"},
	}
	for _, tt := range scaleErrors {
		_, err := NewMark(globals, []NamedConfig{{Name: "x", Config: tt.cfg}}, InferCount)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("NewMark(%s) error = %v, want containing %q", tt.name, err, tt.want)
		}
	}

	// Failed marks leave nothing behind.
	if dev.Live() != 0 {
		t.Errorf("Live() = %d after failed NewMark, want 0", dev.Live())
	}
}

func TestUpdateSeries(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, pointChannels())
	first := m.BindGroup()

	// Same size: written in place.
	err := m.UpdateSeries(map[string]any{
		"uniqueId": []uint32{3, 4},
		"x":        []float32{10, 20},
		"fill":     []uint32{20, 20},
	})
	if err != nil {
		t.Fatalf("UpdateSeries() error = %v", err)
	}
	if m.BindGroup() != first {
		t.Error("UpdateSeries() of equal size rebuilt the bind group")
	}

	n := 100
	ids, xs, fills := make([]uint32, n), make([]float32, n), make([]uint32, n)
	for i := range n {
		ids[i], xs[i], fills[i] = uint32(i+1), float32(i), 10
	}
	if err := m.UpdateSeries(map[string]any{"uniqueId": ids, "x": xs, "fill": fills}); err != nil {
		t.Fatalf("UpdateSeries(grow) error = %v", err)
	}
	if m.Count() != n {
		t.Errorf("Count() = %d, want %d", m.Count(), n)
	}
	for _, ch := range m.Channels() {
		if ch.Name != "x" {
			continue
		}
		if got, ok := ch.Config.Data.([]float32); !ok || len(got) != n || got[n-1] != float32(n-1) {
			t.Errorf("Channels() x data = %v, want the updated series", ch.Config.Data)
		}
	}
	if m.BindGroup() == first {
		t.Error("UpdateSeries() that grew buffers kept the old bind group")
	}
	if _, ok := dev.BindGroup(first); ok {
		t.Error("old bind group still alive after rebind")
	}

	if err := m.UpdateSeries(map[string]any{"y": []float32{1}}); err == nil {
		t.Error("UpdateSeries(value channel) should fail")
	}
}

func TestUpdateValues(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, pointChannels())
	bg := m.BindGroup()

	if err := m.UpdateValues(map[string][]float64{"y": {0.25}}); err != nil {
		t.Fatalf("UpdateValues() error = %v", err)
	}
	if got := uniformF32(t, dev, m, "u_y", 0); got != 0.25 {
		t.Errorf("u_y = %v, want 0.25", got)
	}
	if m.BindGroup() != bg {
		t.Error("UpdateValues() rebuilt the bind group")
	}

	if err := m.UpdateValues(map[string][]float64{"x": {1}}); !errors.Is(err, ErrNotDynamic) {
		t.Errorf("UpdateValues(series) error = %v, want ErrNotDynamic", err)
	}
	if err := m.UpdateValues(map[string][]float64{"nope": {1}}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("UpdateValues(unknown) error = %v, want ErrUnknownChannel", err)
	}
}

func TestUpdateScales(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, pointChannels())
	bg := m.BindGroup()

	if err := m.UpdateScaleDomains(map[string][]float64{"x": {0, 50}}); err != nil {
		t.Fatalf("UpdateScaleDomains() error = %v", err)
	}
	if got := uniformF32(t, dev, m, "uDomain_x", 1); got != 50 {
		t.Errorf("uDomain_x[1] = %v, want 50", got)
	}

	// Same-size ordinal domain reuses the domain map buffer.
	if err := m.UpdateScaleDomains(map[string][]float64{"fill": {30, 20, 10}}); err != nil {
		t.Fatalf("UpdateScaleDomains(fill) error = %v", err)
	}
	if err := m.UpdateScaleRanges(map[string][]RangeValue{"x": Nums(10, 20)}); err != nil {
		t.Fatalf("UpdateScaleRanges() error = %v", err)
	}
	if got := uniformF32(t, dev, m, "uRange_x", 0); got != 10 {
		t.Errorf("uRange_x[0] = %v, want 10", got)
	}
	if m.BindGroup() != bg {
		t.Error("scale updates that fit rebuilt the bind group")
	}

	if err := m.UpdateScaleDomains(map[string][]float64{"y": {0, 1}}); err == nil {
		t.Error("UpdateScaleDomains(unscaled channel) should fail")
	}
}

func TestUpdateSelection(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, pointChannels())
	bg := m.BindGroup()

	if err := m.UpdateSelection("picked", SelectMulti(1, 2)); err != nil {
		t.Fatalf("UpdateSelection() error = %v", err)
	}
	grown := m.BindGroup()
	if grown == bg {
		t.Error("first multi selection should outgrow the empty set and rebind")
	}
	if err := m.UpdateSelection("picked", SelectMulti(2)); err != nil {
		t.Fatalf("UpdateSelection(smaller) error = %v", err)
	}
	if m.BindGroup() != grown {
		t.Error("smaller multi selection rebuilt the bind group")
	}

	if err := m.UpdateSelection("picked", SelectSingle(1)); err == nil {
		t.Error("UpdateSelection(type change) should fail")
	}
	if err := m.UpdateSelection("nope", SelectSingle(1)); !errors.Is(err, selection.ErrUnknownSelection) {
		t.Errorf("UpdateSelection(unknown) error = %v", err)
	}
}

func TestExtras(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	tex, _ := dev.CreateTexture(gpucore.TextureDesc{Label: "atlas", Width: 4, Height: 4})
	smp, _ := dev.CreateSampler("atlas")
	m := newTestMark(t, dev, pointChannels(), WithExtras(
		ExtraResource{Extra: Extra{Name: "atlas", Kind: ExtraTexture}, Texture: tex},
		ExtraResource{Extra: Extra{Name: "atlasSampler", Kind: ExtraSampler}, Sampler: smp},
	))
	if !strings.Contains(m.ShaderCode(), "var atlas: texture_2d<f32>;") {
		t.Error("ShaderCode() missing atlas declaration")
	}

	bg := m.BindGroup()
	tex2, _ := dev.CreateTexture(gpucore.TextureDesc{Label: "atlas2", Width: 8, Height: 8})
	if err := m.SetExtra(ExtraResource{Extra: Extra{Name: "atlas"}, Texture: tex2}); err != nil {
		t.Fatalf("SetExtra() error = %v", err)
	}
	if m.BindGroup() == bg {
		t.Error("SetExtra() did not rebuild the bind group")
	}
	if err := m.SetExtra(ExtraResource{Extra: Extra{Name: "missing"}}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("SetExtra(unknown) error = %v", err)
	}

	_, err := NewMark(RendererGlobals{Device: dev}, pointChannels(), InferCount,
		WithExtras(ExtraResource{Extra: Extra{Name: "atlas", Kind: ExtraTexture}}))
	if err == nil || !strings.Contains(err.Error(), `missing extra texture for "atlas"`) {
		t.Errorf("NewMark(unbound extra) error = %v", err)
	}
}

func TestCreatePipeline(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, pointChannels())
	if _, err := m.CreatePipeline("vs_main", "fs_main"); !errors.Is(err, ErrNoGlobalLayout) {
		t.Errorf("CreatePipeline(no globals layout) error = %v", err)
	}

	layout, err := CreateGlobalsLayout(dev)
	if err != nil {
		t.Fatal(err)
	}
	m.globals.GlobalsLayout = layout
	p1, err := m.CreatePipeline("vs_main", "fs_main")
	if err != nil {
		t.Fatalf("CreatePipeline() error = %v", err)
	}
	p2, _ := m.CreatePipeline("vs_main", "fs_main")
	if p1 != p2 {
		t.Errorf("CreatePipeline() = %d then %d, want cached pipeline", p1, p2)
	}
	src, ok := dev.ShaderSource(m.module)
	if !ok || src != m.ShaderCode() {
		t.Error("shader module source differs from ShaderCode()")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m, err := NewMark(RendererGlobals{Device: dev}, pointChannels(), InferCount, WithShaderBody(pointBody))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateSelection("picked", SelectMulti(1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if dev.Live() == 0 {
		t.Fatal("no live resources before Close")
	}
	m.Close()
	if dev.Live() != 0 {
		t.Errorf("Live() = %d after Close, want 0", dev.Live())
	}
	m.Close()
	if err := m.UpdateValues(map[string][]float64{"y": {1}}); !errors.Is(err, ErrClosed) {
		t.Errorf("UpdateValues(closed) error = %v, want ErrClosed", err)
	}
}

func TestValueOnlyMark(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	m := newTestMark(t, dev, []NamedConfig{
		{Name: "x", Config: ValueChannel(0.5)},
		{Name: "y", Config: ChannelConfig{Value: []float64{0.25}, Dynamic: true}},
	})
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
	if got := len(m.LayoutEntries()); got != 1 {
		t.Errorf("LayoutEntries() = %d, want Params only", got)
	}
	if !strings.Contains(m.ShaderCode(), "fn getScaled_x(i: u32) -> f32 {\n    return 0.5;\n}") {
		t.Errorf("ShaderCode() lacks literal x:\n%s", m.ShaderCode())
	}
}
