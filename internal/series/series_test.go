package series

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/wgsl"
)

func named(name string, cfg channel.Config) channel.Named {
	return channel.Named{Name: name, Config: cfg}
}

func words(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func TestBuildLayout(t *testing.T) {
	channels := []channel.Named{
		named("x", channel.SeriesConfig([]float32{1, 2}, 1)),
		named("size", channel.ValueConfig(4)),
		named("pos", channel.SeriesConfig([]float32{1, 2, 3, 4}, 2)),
		named("uniqueId", channel.SeriesConfig([]uint32{7, 8}, 1)),
		named("fill", channel.SeriesConfig([]float32{0, 0, 0, 1, 1, 1, 1, 1}, 4)),
	}
	l, err := BuildLayout(channels)
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	if l.Len() != 4 {
		t.Errorf("Len() = %d, want 4", l.Len())
	}
	if got := l.Stride(wgsl.F32); got != 7 {
		t.Errorf("Stride(f32) = %d, want 7", got)
	}
	if got := l.Stride(wgsl.U32); got != 1 {
		t.Errorf("Stride(u32) = %d, want 1", got)
	}
	if got := l.Types(); len(got) != 2 || got[0] != wgsl.F32 || got[1] != wgsl.U32 {
		t.Errorf("Types() = %v, want [f32 u32]", got)
	}

	tests := []struct {
		name   string
		offset int
		comps  int
		buffer string
	}{
		{"x", 0, 1, wgsl.SeriesF32},
		{"pos", 1, 2, wgsl.SeriesF32},
		{"fill", 3, 4, wgsl.SeriesF32},
		{"uniqueId", 0, 1, wgsl.SeriesU32},
	}
	for _, tt := range tests {
		e, ok := l.Entry(tt.name)
		if !ok {
			t.Fatalf("Entry(%q) missing", tt.name)
		}
		if e.Offset != tt.offset || e.Components != tt.comps || e.BufferName() != tt.buffer {
			t.Errorf("Entry(%q) = %+v, want offset %d comps %d in %s", tt.name, e, tt.offset, tt.comps, tt.buffer)
		}
	}
	if _, ok := l.Entry("size"); ok {
		t.Error("value channel has a series entry")
	}
}

func TestBuildLayoutErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  channel.Config
		want string
	}{
		{"missing type", channel.Config{Data: []float32{1}}, "missing type"},
		{"components", channel.Config{Data: []float32{1, 2, 3}, Type: wgsl.F32, Components: 3}, "1, 2, or 4 components"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildLayout([]channel.Named{named("x", tt.cfg)})
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("BuildLayout() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAliases(t *testing.T) {
	shared := []float32{1, 2, 3}
	channels := []channel.Named{
		named("x", channel.SeriesConfig(shared, 1)),
		named("x2", channel.SeriesConfig(shared, 1)),
		named("y", channel.SeriesConfig([]float32{4, 5, 6}, 1)),
	}
	aliases := Aliases(channels)
	if aliases["x2"] != "x" || aliases["y"] != "y" {
		t.Errorf("Aliases() = %v", aliases)
	}
	l, err := BuildLayout(channels)
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	if got := l.Stride(wgsl.F32); got != 2 {
		t.Errorf("Stride(f32) = %d, want 2 for aliased x/x2", got)
	}
	x, _ := l.Entry("x")
	x2, _ := l.Entry("x2")
	if x.Offset != x2.Offset {
		t.Errorf("x2 offset = %d, want shared offset %d", x2.Offset, x.Offset)
	}

	// The same backing array viewed as different types cannot alias.
	mixed := []channel.Named{
		named("a", channel.Config{Data: shared, Type: wgsl.F32, Components: 1}),
		named("b", channel.Config{Data: shared, Type: wgsl.F32, Components: 1, InputComponents: 2}),
	}
	if _, err := BuildLayout(mixed); err == nil || !strings.Contains(err.Error(), "must keep type/components consistent") {
		t.Errorf("BuildLayout(mixed alias) error = %v", err)
	}
}

func TestPackInterleaves(t *testing.T) {
	channels := []channel.Named{
		named("x", channel.SeriesConfig([]float32{1, 2}, 1)),
		named("pos", channel.SeriesConfig([]float32{10, 11, 20, 21}, 2)),
		named("id", channel.SeriesConfig([]uint32{7, 8}, 1)),
		named("delta", channel.SeriesConfig([]int32{-1, -2}, 1)),
	}
	l, err := BuildLayout(channels)
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	packed, err := l.Pack(channels, 2)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	f := words(packed[wgsl.F32])
	wantF := []float32{1, 10, 11, 2, 20, 21}
	if len(f) != len(wantF) {
		t.Fatalf("f32 bucket has %d words, want %d", len(f), len(wantF))
	}
	for i, w := range wantF {
		if got := math.Float32frombits(f[i]); got != w {
			t.Errorf("f32[%d] = %v, want %v", i, got, w)
		}
	}
	if u := words(packed[wgsl.U32]); u[0] != 7 || u[1] != 8 {
		t.Errorf("u32 bucket = %v, want [7 8]", u)
	}
	if i := words(packed[wgsl.I32]); int32(i[1]) != -2 {
		t.Errorf("i32[1] = %d, want -2", int32(i[1]))
	}
}

func TestPackLargeCount(t *testing.T) {
	const n = 100_000
	xs := make([]float32, n)
	pos := make([]float32, 2*n)
	for i := range n {
		xs[i] = float32(i)
		pos[2*i], pos[2*i+1] = float32(-i), float32(i*2)
	}
	channels := []channel.Named{
		named("x", channel.SeriesConfig(xs, 1)),
		named("pos", channel.SeriesConfig(pos, 2)),
	}
	l, err := BuildLayout(channels)
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	packed, err := l.Pack(channels, n)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	f := words(packed[wgsl.F32])
	if len(f) != 3*n {
		t.Fatalf("f32 bucket has %d words, want %d", len(f), 3*n)
	}
	for _, i := range []int{0, 1, packChunk - 1, packChunk, n / 2, n - 1} {
		got := [3]float32{
			math.Float32frombits(f[3*i]),
			math.Float32frombits(f[3*i+1]),
			math.Float32frombits(f[3*i+2]),
		}
		want := [3]float32{float32(i), float32(-i), float32(i * 2)}
		if got != want {
			t.Errorf("instance %d = %v, want %v", i, got, want)
		}
	}
}

func TestPackErrors(t *testing.T) {
	short := []channel.Named{named("x", channel.SeriesConfig([]float32{1}, 1))}
	l, _ := BuildLayout(short)
	if _, err := l.Pack(short, 3); err == nil || !strings.Contains(err.Error(), `channel "x" length (1) is less than count (3)`) {
		t.Errorf("Pack(short) error = %v", err)
	}

	wrong := []channel.Named{named("x", channel.Config{Data: []uint32{1}, Type: wgsl.F32, Components: 1})}
	l, _ = BuildLayout(wrong)
	if _, err := l.Pack(wrong, 1); err == nil || !strings.Contains(err.Error(), "expects a []float32") {
		t.Errorf("Pack(wrong slice) error = %v", err)
	}
}

func TestPackHighPrecision(t *testing.T) {
	got := PackHighPrecision([]float64{8192*1808 + 10, 4095})
	want := []uint32{8192 * 1808 / 4096, 10, 0, 4095}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PackHighPrecision() = %v, want %v", got, want)
		}
	}

	index := &scale.Config{Type: "index"}
	channels := []channel.Named{
		named("x", channel.Config{Data: []float64{5000, 9000}, Type: wgsl.U32, Components: 1, InputComponents: 2, Scale: index}),
	}
	l, err := BuildLayout(channels)
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	packed, err := l.Pack(channels, 2)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	u := words(packed[wgsl.U32])
	if u[0] != 1 || u[1] != 904 || u[2] != 2 || u[3] != 808 {
		t.Errorf("packed index = %v, want [1 904 2 808]", u)
	}
	count, ok, err := InferCount(channels)
	if err != nil || !ok || count != 2 {
		t.Errorf("InferCount() = %d, %v, %v; want 2", count, ok, err)
	}

	scalar := []channel.Named{
		named("x", channel.Config{Data: []float64{1}, Type: wgsl.U32, Components: 1, InputComponents: 1, Scale: index}),
	}
	l, _ = BuildLayout(scalar)
	if _, err := l.Pack(scalar, 1); err == nil || !strings.Contains(err.Error(), "inputComponents: 2") {
		t.Errorf("Pack(scalar float64 index) error = %v", err)
	}
}

func TestReaderWGSL(t *testing.T) {
	channels := []channel.Named{
		named("x", channel.SeriesConfig([]float32{1}, 1)),
		named("pos", channel.SeriesConfig([]float32{1, 2}, 2)),
	}
	l, _ := BuildLayout(channels)
	got, err := l.ReaderWGSL("x")
	if err != nil {
		t.Fatal(err)
	}
	want := "fn read_x(i: u32) -> f32 {\n    return seriesF32[0u + i * 3u];\n}\n"
	if got != want {
		t.Errorf("ReaderWGSL(x) =\n%s\nwant\n%s", got, want)
	}
	got, _ = l.ReaderWGSL("pos")
	if !strings.Contains(got, "let base = 1u + i * 3u;") ||
		!strings.Contains(got, "vec2<f32>(seriesF32[base], seriesF32[base + 1u])") {
		t.Errorf("ReaderWGSL(pos) = %s", got)
	}
	if _, err := l.ReaderWGSL("missing"); err == nil {
		t.Error("ReaderWGSL(missing) error = nil")
	}
}

func TestInferCount(t *testing.T) {
	tests := []struct {
		name     string
		channels []channel.Named
		want     int
		wantOK   bool
		wantErr  string
	}{
		{"none", []channel.Named{named("size", channel.ValueConfig(1))}, 0, false, ""},
		{"vec", []channel.Named{named("pos", channel.SeriesConfig([]float32{1, 2, 3, 4}, 2))}, 2, true, ""},
		{"divisible", []channel.Named{named("pos", channel.SeriesConfig([]float32{1, 2, 3}, 2))}, 0, false, "must be divisible by 2"},
		{"mismatch", []channel.Named{
			named("x", channel.SeriesConfig([]float32{1, 2, 3}, 1)),
			named("y", channel.SeriesConfig([]float32{1, 2}, 1)),
		}, 0, false, `"y" count (2) does not match inferred count (3)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := InferCount(tt.channels)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("InferCount() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || ok != tt.wantOK || got != tt.want {
				t.Errorf("InferCount() = %d, %v, %v; want %d, %v", got, ok, err, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuffersGrowOnly(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	channels := []channel.Named{
		named("x", channel.SeriesConfig([]float32{1, 2}, 1)),
		named("size", channel.ValueConfig(3)),
	}
	b, err := NewBuffers(dev, channels, "mark.", nil)
	if err != nil {
		t.Fatalf("NewBuffers() error = %v", err)
	}
	defer b.Close()

	rebind, err := b.Update(nil, 2)
	if err != nil || !rebind {
		t.Fatalf("first Update() = %v, %v; want rebind", rebind, err)
	}
	first, ok := b.Buffer(wgsl.SeriesF32)
	if !ok {
		t.Fatal("seriesF32 buffer missing")
	}

	rebind, err = b.Update(map[string]any{"x": []float32{5}}, 1)
	if err != nil || rebind {
		t.Fatalf("shrinking Update() = %v, %v; want no rebind", rebind, err)
	}
	if id, _ := b.Buffer(wgsl.SeriesF32); id != first {
		t.Error("buffer replaced on shrink")
	}
	mb, _ := dev.Buffer(first)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(mb.Data)); got != 5 {
		t.Errorf("buffer[0] = %v, want 5", got)
	}

	rebind, err = b.Update(map[string]any{"x": []float32{1, 2, 3, 4}}, 4)
	if err != nil || !rebind {
		t.Fatalf("growing Update() = %v, %v; want rebind", rebind, err)
	}
	if id, _ := b.Buffer(wgsl.SeriesF32); id == first {
		t.Error("buffer not replaced on growth")
	}
	if _, ok := dev.Buffer(first); ok {
		t.Error("old buffer still alive after growth")
	}
	if got := dev.Live(); got != 1 {
		t.Errorf("Live() = %d, want 1", got)
	}
}

func TestBuffersEmpty(t *testing.T) {
	dev := gpucore.NewMemoryDevice()
	b, err := NewBuffers(dev, []channel.Named{named("x", channel.SeriesConfig([]float32{}, 1))}, "", nil)
	if err != nil {
		t.Fatalf("NewBuffers() error = %v", err)
	}
	if _, err := b.Update(nil, 0); err != nil {
		t.Fatalf("Update(0) error = %v", err)
	}
	id, _ := b.Buffer(wgsl.SeriesF32)
	if got := dev.BufferSize(id); got != minBufferSize {
		t.Errorf("empty bucket size = %d, want %d", got, minBufferSize)
	}
}

func TestBuffersAliasUpdate(t *testing.T) {
	shared := []float32{1, 2}
	channels := []channel.Named{
		named("x", channel.SeriesConfig(shared, 1)),
		named("x2", channel.SeriesConfig(shared, 1)),
	}
	b, err := NewBuffers(gpucore.NewMemoryDevice(), channels, "", nil)
	if err != nil {
		t.Fatalf("NewBuffers() error = %v", err)
	}
	_, err = b.Update(map[string]any{"x": []float32{3, 4}}, 2)
	if err == nil || !strings.Contains(err.Error(), `series channels "x", "x2" must share the same buffer`) {
		t.Errorf("Update(split alias) error = %v", err)
	}

	next := []float32{3, 4}
	if _, err := b.Update(map[string]any{"x": next, "x2": next}, 2); err != nil {
		t.Errorf("Update(shared alias) error = %v", err)
	}
	if _, err := b.Update(map[string]any{"nope": next}, 2); err == nil {
		t.Error("Update(unknown channel) error = nil")
	}

	info := b.Info()
	if len(info) != 1 || info[0].Buffer != wgsl.SeriesF32 || len(info[0].Channels) != 2 {
		t.Errorf("Info() = %+v", info)
	}
}
