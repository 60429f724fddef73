package selection

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/hashtable"
	"github.com/gogpu/markgpu/internal/uniform"
	"github.com/gogpu/markgpu/internal/wgsl"
)

func cond(sel string, typ channel.SelectionType, target string, value ...float64) channel.Condition {
	return channel.Condition{When: channel.Predicate{Selection: sel, Type: typ, Channel: target}, Value: value}
}

func withConditions(cfg channel.Config, conds ...channel.Condition) channel.Config {
	cfg.Conditions = conds
	return cfg
}

func named(name string, cfg channel.Config) channel.Named {
	return channel.Named{Name: name, Config: cfg}
}

// markChannels is a point mark with a brush on x and a click on uniqueId.
func markChannels() []channel.Named {
	return []channel.Named{
		named("uniqueId", channel.SeriesConfig([]uint32{1, 2, 3}, 1)),
		named("x", channel.SeriesConfig([]float32{0, 5, 10}, 1)),
		named("x2", channel.SeriesConfig([]float32{1, 6, 11}, 1)),
		named("size", withConditions(channel.ValueConfig(4),
			cond("click", channel.SelectionSingle, "", 8),
			cond("brush", channel.SelectionInterval, "x", 6))),
		named("fill", withConditions(channel.ValueConfig(0, 0, 0, 1),
			cond("picked", channel.SelectionMulti, "", 1, 0, 0, 1))),
	}
}

type rig struct {
	dev *gpucore.MemoryDevice
	buf *uniform.Buffer
	mgr *Manager
}

func newRig(t *testing.T, channels []channel.Named) *rig {
	t.Helper()
	defs, err := Collect(channels)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	var b uniform.Builder
	AddUniforms(&b, defs)
	AddConditionUniforms(&b, channels)
	layout, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	r := &rig{dev: gpucore.NewMemoryDevice(), buf: uniform.NewBuffer(layout)}
	r.mgr, err = NewManager(Context{Device: r.dev, Uniforms: r.buf}, channels)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := r.mgr.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(r.mgr.Close)
	return r
}

func (r *rig) word(t *testing.T, name string, lane int) uint32 {
	t.Helper()
	off, ok := r.buf.Layout().Offset(name)
	if !ok {
		t.Fatalf("uniform %q missing", name)
	}
	return binary.LittleEndian.Uint32(r.buf.Bytes()[off+4*lane:])
}

func (r *rig) float(t *testing.T, name string, lane int) float32 {
	t.Helper()
	return math.Float32frombits(r.word(t, name, lane))
}

func TestCollect(t *testing.T) {
	defs, err := Collect(markChannels())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("Collect() = %d defs, want 3", len(defs))
	}
	names := []string{defs[0].Name, defs[1].Name, defs[2].Name}
	if strings.Join(names, ",") != "click,brush,picked" {
		t.Errorf("order = %v, want [click brush picked]", names)
	}
	brush := defs[1]
	if brush.Channel != "x" || brush.SecondaryChannel != "x2" || brush.ScalarType != wgsl.F32 {
		t.Errorf("brush = %+v", brush)
	}
}

func TestCollectErrors(t *testing.T) {
	x := named("x", channel.SeriesConfig([]float32{1}, 1))
	pos := named("pos", channel.SeriesConfig([]float32{1, 2}, 2))
	tests := []struct {
		name     string
		channels []channel.Named
		want     string
	}{
		{"type change", []channel.Named{x,
			named("size", withConditions(channel.ValueConfig(1), cond("s", channel.SelectionSingle, "", 2))),
			named("opacity", withConditions(channel.ValueConfig(1), cond("s", channel.SelectionMulti, "", 2))),
		}, `selection "s" must keep a single type`},
		{"two channels", []channel.Named{x, pos,
			named("size", withConditions(channel.ValueConfig(1),
				cond("b", channel.SelectionInterval, "x", 2),
				cond("b", channel.SelectionInterval, "pos", 3))),
		}, `selection "b" must target a single interval channel`},
		{"no channel", []channel.Named{
			named("size", withConditions(channel.ValueConfig(1), cond("b", channel.SelectionInterval, "", 2))),
		}, `interval selection "b" must specify a channel`},
		{"unknown channel", []channel.Named{
			named("size", withConditions(channel.ValueConfig(1), cond("b", channel.SelectionInterval, "y", 2))),
		}, `interval selection "b" references unknown channel "y"`},
		{"vector channel", []channel.Named{pos,
			named("size", withConditions(channel.ValueConfig(1), cond("b", channel.SelectionInterval, "pos", 2))),
		}, `interval selection "b" requires scalar channel "pos"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(tt.channels)
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Collect() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNewManagerRequiresUniqueID(t *testing.T) {
	channels := []channel.Named{
		named("size", withConditions(channel.ValueConfig(1), cond("s", channel.SelectionSingle, "", 2))),
	}
	_, err := NewManager(Context{Device: gpucore.NewMemoryDevice()}, channels)
	if !errors.Is(err, ErrMissingUniqueID) {
		t.Errorf("NewManager() error = %v, want ErrMissingUniqueID", err)
	}

	// Interval selections do not test ids.
	channels = []channel.Named{
		named("x", channel.SeriesConfig([]float32{1}, 1)),
		named("size", withConditions(channel.ValueConfig(1), cond("b", channel.SelectionInterval, "x", 2))),
	}
	if _, err := NewManager(Context{Device: gpucore.NewMemoryDevice()}, channels); err != nil {
		t.Errorf("NewManager(interval only) error = %v", err)
	}
}

func TestInitialize(t *testing.T) {
	r := newRig(t, markChannels())
	if got := r.word(t, "uSelection_click", 0); got != 0 {
		t.Errorf("single = %d, want 0", got)
	}
	if lo, hi := r.float(t, "uSelection_brush", 0), r.float(t, "uSelection_brush", 1); lo != 1 || hi != 0 {
		t.Errorf("interval = [%v %v], want empty [1 0]", lo, hi)
	}
	if got := r.word(t, "uSelectionCount_picked", 0); got != 0 {
		t.Errorf("multi count = %d, want 0", got)
	}
	id, ok := r.mgr.Buffer("selection_picked")
	if !ok {
		t.Fatal("selection_picked buffer missing")
	}
	if got := r.dev.BufferSize(id); got != 8 {
		t.Errorf("empty set buffer = %d bytes, want 8", got)
	}
}

func TestUpdate(t *testing.T) {
	r := newRig(t, markChannels())

	if rebind, err := r.mgr.Update("click", Single(2)); err != nil || rebind {
		t.Fatalf("Update(single) = %v, %v", rebind, err)
	}
	if got := r.word(t, "uSelection_click", 0); got != 2 {
		t.Errorf("single = %d, want 2", got)
	}

	if _, err := r.mgr.Update("brush", Interval(2, 7)); err != nil {
		t.Fatalf("Update(interval) error = %v", err)
	}
	if lo, hi := r.float(t, "uSelection_brush", 0), r.float(t, "uSelection_brush", 1); lo != 2 || hi != 7 {
		t.Errorf("interval = [%v %v], want [2 7]", lo, hi)
	}

	if _, err := r.mgr.Update("nope", Single(1)); !errors.Is(err, ErrUnknownSelection) {
		t.Errorf("Update(unknown) error = %v", err)
	}
	if _, err := r.mgr.Update("click", Multi(1)); err == nil || !strings.Contains(err.Error(), `selection "click" must remain type "single"`) {
		t.Errorf("Update(type change) error = %v", err)
	}
}

func TestUpdateMultiGrowOnly(t *testing.T) {
	r := newRig(t, markChannels())
	first, _ := r.mgr.Buffer("selection_picked")

	rebind, err := r.mgr.Update("picked", Multi(1, 2, 3))
	if err != nil || !rebind {
		t.Fatalf("Update(grow) = %v, %v; want rebind", rebind, err)
	}
	grown, _ := r.mgr.Buffer("selection_picked")
	if grown == first {
		t.Fatal("buffer not replaced on growth")
	}
	if got := r.word(t, "uSelectionCount_picked", 0); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}

	rebind, err = r.mgr.Update("picked", Multi(7))
	if err != nil || rebind {
		t.Fatalf("Update(shrink) = %v, %v; want no rebind", rebind, err)
	}
	if id, _ := r.mgr.Buffer("selection_picked"); id != grown {
		t.Error("buffer replaced on shrink")
	}

	mb, _ := r.dev.Buffer(grown)
	words := make([]uint32, len(mb.Data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(mb.Data[i*4:])
	}
	table := &hashtable.Table{Data: words, Capacity: len(words) / 2}
	for _, id := range []uint32{1, 2, 3} {
		if table.Contains(id) {
			t.Errorf("stale id %d still in set", id)
		}
	}
	if !table.Contains(7) {
		t.Error("id 7 missing from set")
	}
	if got := r.dev.Live(); got != 1 {
		t.Errorf("Live() = %d, want 1", got)
	}
}

func TestConditionUniforms(t *testing.T) {
	channels := []channel.Named{
		named("uniqueId", channel.SeriesConfig([]uint32{1}, 1)),
		named("fill", withConditions(channel.ValueConfig(0, 0, 0, 1),
			channel.Condition{
				When:    channel.Predicate{Selection: "hover", Type: channel.SelectionSingle},
				Value:   []float64{1, 0, 0, 1},
				Dynamic: true,
			})),
	}
	r := newRig(t, channels)
	name := ConditionUniform("fill", 0)
	if name != "u_fill__cond0" {
		t.Errorf("ConditionUniform() = %q", name)
	}
	if got := r.float(t, name, 0); got != 1 {
		t.Errorf("initial condition value = %v, want 1", got)
	}
	if err := r.mgr.SetConditionValue("fill", 0, []float64{0.2, 0.4, 0.6, 1}); err != nil {
		t.Fatalf("SetConditionValue() error = %v", err)
	}
	if got := r.float(t, name, 0); math.Abs(float64(got)-0.2) > 1e-6 {
		t.Errorf("condition value = %v, want 0.2", got)
	}
	if err := r.mgr.SetConditionValue("fill", 1, nil); err == nil {
		t.Error("SetConditionValue(missing) error = nil")
	}
}

func TestPredicateWGSL(t *testing.T) {
	channels := markChannels()
	irs := make(map[string]channel.IR)
	for _, ir := range channel.BuildIRs(channels) {
		irs[ir.Name] = ir
	}
	defs, err := Collect(channels)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		def  Def
		want []string
	}{
		{defs[0], []string{
			"fn isSelected_click(i: u32) -> bool {",
			"return read_uniqueId(i) == params.uSelection_click;",
			"return params.uSelection_click == 0u;",
		}},
		{defs[1], []string{
			"let v = read_x(i);",
			"let v2 = read_x2(i);",
			"return params.uSelection_brush.x <= params.uSelection_brush.y && v <= params.uSelection_brush.y && v2 >= params.uSelection_brush.x;",
			"return params.uSelection_brush.x > params.uSelection_brush.y;",
		}},
		{defs[2], []string{
			"return hashContains(&selection_picked, read_uniqueId(i), arrayLength(&selection_picked));",
			"return params.uSelectionCount_picked == 0u;",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.def.Name, func(t *testing.T) {
			got, err := PredicateWGSL(tt.def, irs)
			if err != nil {
				t.Fatalf("PredicateWGSL() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("PredicateWGSL() missing %q in\n%s", w, got)
				}
			}
		})
	}

	single := Def{Name: "b", Type: channel.SelectionInterval, Channel: "size", ScalarType: wgsl.F32}
	got, err := PredicateWGSL(single, irs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "return params.uSelection_b.x <= v && v <= params.uSelection_b.y;") {
		t.Errorf("inclusive interval missing in\n%s", got)
	}

	if _, err := PredicateWGSL(Def{Name: "z", Type: channel.SelectionInterval, Channel: "nope"}, irs); err == nil {
		t.Error("PredicateWGSL(missing channel) error = nil")
	}
}

// evalSelected evaluates the return expression of an interval
// isSelected function for one instance.
func evalSelected(t *testing.T, src, param string, lo, hi, v, v2 float64) bool {
	t.Helper()
	var expr string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "return ") {
			expr = strings.TrimSuffix(strings.TrimPrefix(line, "return "), ";")
			break
		}
	}
	if expr == "" {
		t.Fatalf("no return statement in\n%s", src)
	}
	operand := func(tok string) float64 {
		switch tok {
		case "v":
			return v
		case "v2":
			return v2
		case param + ".x":
			return lo
		case param + ".y":
			return hi
		}
		t.Fatalf("unexpected operand %q in %q", tok, expr)
		return 0
	}
	for _, clause := range strings.Split(expr, " && ") {
		f := strings.Fields(clause)
		if len(f) != 3 {
			t.Fatalf("unexpected clause %q", clause)
		}
		a, b := operand(f[0]), operand(f[2])
		var ok bool
		switch f[1] {
		case "<=":
			ok = a <= b
		case ">=":
			ok = a >= b
		default:
			t.Fatalf("unexpected operator %q", f[1])
		}
		if !ok {
			return false
		}
	}
	return true
}

func TestIntervalPredicateSemantics(t *testing.T) {
	irs := make(map[string]channel.IR)
	for _, ir := range channel.BuildIRs(markChannels()) {
		irs[ir.Name] = ir
	}
	span := Def{Name: "brush", Type: channel.SelectionInterval, Channel: "x", SecondaryChannel: "x2", ScalarType: wgsl.F32}
	point := Def{Name: "b", Type: channel.SelectionInterval, Channel: "size", ScalarType: wgsl.F32}

	tests := []struct {
		name   string
		def    Def
		lo, hi float64
		v, v2  float64
		want   bool
	}{
		{"span default interval", span, 1, 0, 0, 1, false},
		{"span default interval inside", span, 1, 0, 0.5, 0.5, false},
		{"span inverted wide", span, 5, -5, -10, 10, false},
		{"span overlaps", span, 0, 10, 5, 20, true},
		{"span covers", span, 0, 10, -5, 15, true},
		{"span touches lower bound", span, 0, 10, -5, 0, true},
		{"span after", span, 0, 10, 11, 12, false},
		{"span before", span, 0, 10, -3, -1, false},
		{"point default interval", point, 1, 0, 0.5, 0, false},
		{"point inside", point, 0, 1, 0.5, 0, true},
		{"point on upper bound", point, 0, 1, 1, 0, true},
		{"point outside", point, 0, 1, 1.5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := PredicateWGSL(tt.def, irs)
			if err != nil {
				t.Fatalf("PredicateWGSL() error = %v", err)
			}
			param := "params." + tt.def.UniformName()
			if got := evalSelected(t, src, param, tt.lo, tt.hi, tt.v, tt.v2); got != tt.want {
				t.Errorf("selected(%v..%v in [%v, %v]) = %v, want %v", tt.v, tt.v2, tt.lo, tt.hi, got, tt.want)
			}
		})
	}
}

func TestConditionedWGSL(t *testing.T) {
	fill := channel.Config{
		Value:      []float64{0, 0, 0, 1},
		Components: 4,
		Conditions: []channel.Condition{
			{When: channel.Predicate{Selection: "picked", Type: channel.SelectionMulti, Empty: true}, Value: []float64{1, 0, 0, 1}},
			{When: channel.Predicate{Selection: "click", Type: channel.SelectionSingle}, Value: []float64{0, 1, 0, 1}, Dynamic: true},
		},
	}
	ir, ok := channel.BuildIR("fill", fill)
	if !ok {
		t.Fatal("BuildIR() ok = false")
	}
	got, ok := ConditionedWGSL(ir)
	if !ok {
		t.Fatal("ConditionedWGSL() ok = false")
	}
	want := "fn getConditioned_fill(i: u32) -> vec4<f32> {\n" +
		"    if (isSelected_picked(i) || isSelectionEmpty_picked()) {\n" +
		"        return vec4<f32>(1.0, 0.0, 0.0, 1.0);\n" +
		"    }\n" +
		"    if (isSelected_click(i)) {\n" +
		"        return params.u_fill__cond1;\n" +
		"    }\n" +
		"    return getScaled_fill(i);\n" +
		"}\n"
	if got != want {
		t.Errorf("ConditionedWGSL() =\n%s\nwant\n%s", got, want)
	}

	plain, _ := channel.BuildIR("size", channel.ValueConfig(1))
	if _, ok := ConditionedWGSL(plain); ok {
		t.Error("ConditionedWGSL(no conditions) ok = true")
	}
}
