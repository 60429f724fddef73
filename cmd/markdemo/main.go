// Command markdemo compiles a synthetic genome track into a mark and
// prints the generated shader or a resource report.
//
// Usage:
//
//	markdemo [-count n] [-validate] [-json] [-o shader.wgsl]
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"

	json "github.com/goccy/go-json"

	"github.com/gogpu/markgpu"
	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/shader"
)

const pointShader = `struct VertexOutput {
    @builtin(position) pos: vec4<f32>,
    @location(0) color: vec4<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) v: u32, @builtin(instance_index) i: u32) -> VertexOutput {
    var corners = array<vec2<f32>, 6>(
        vec2<f32>(-1.0, -1.0), vec2<f32>(1.0, -1.0), vec2<f32>(-1.0, 1.0),
        vec2<f32>(-1.0, 1.0), vec2<f32>(1.0, -1.0), vec2<f32>(1.0, 1.0));
    let size = getScaled_size(i);
    let px = vec2<f32>(getScaled_x(i), getScaled_y(i)) + corners[v] * size * 0.5;
    let ndc = px / vec2<f32>(globals.width, globals.height) * 2.0 - 1.0;
    var out: VertexOutput;
    out.pos = vec4<f32>(ndc.x, -ndc.y, 0.0, 1.0);
    out.color = getConditioned_color(i);
    return out;
}

@fragment
fn fs_main(frag: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(frag.color.rgb * frag.color.a, frag.color.a);
}
`

type bucketReport struct {
	Buffer   string   `json:"buffer"`
	Stride   int      `json:"stride"`
	Bytes    uint64   `json:"bytes"`
	Channels []string `json:"channels"`
}

type bindingReport struct {
	Binding int    `json:"binding"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

type report struct {
	Label       string          `json:"label"`
	Count       int             `json:"count"`
	ShaderBytes int             `json:"shaderBytes"`
	Bindings    []bindingReport `json:"bindings"`
	Series      []bucketReport  `json:"series"`
	Live        int             `json:"liveResources"`
}

func main() {
	var (
		count    = flag.Int("count", 1000, "number of genomic positions")
		width    = flag.Float64("width", 800, "viewport width")
		height   = flag.Float64("height", 600, "viewport height")
		seed     = flag.Uint64("seed", 1, "random seed")
		validate = flag.Bool("validate", false, "compile the shader to SPIR-V with naga")
		asJSON   = flag.Bool("json", false, "print a resource report as JSON instead of the shader")
		output   = flag.String("o", "", "write the shader to this file instead of stdout")
		verbose  = flag.Bool("v", false, "log mark lifecycle events")
	)
	flag.Parse()

	if *verbose {
		markgpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	dev := gpucore.NewMemoryDevice()
	mark, err := markgpu.NewMark(
		markgpu.RendererGlobals{Device: dev, DefaultRanges: markgpu.ViewportRanges(*width, *height)},
		trackChannels(*count, rand.New(rand.NewPCG(*seed, *seed))),
		markgpu.InferCount,
		markgpu.WithLabel("track"),
		markgpu.WithShaderBody(pointShader),
	)
	if err != nil {
		log.Fatalf("markdemo: %v", err)
	}
	defer mark.Close()

	if err := mark.UpdateSelection("highlight", markgpu.SelectMulti(1, 2, 3)); err != nil {
		log.Fatalf("markdemo: %v", err)
	}

	if *validate {
		if err := shader.Validate(mark.ShaderCode()); err != nil {
			log.Fatalf("markdemo: %v", err)
		}
		log.Printf("shader validated (%d bytes)", len(mark.ShaderCode()))
	}

	if *asJSON {
		out, err := json.MarshalIndent(buildReport(mark, dev), "", "  ")
		if err != nil {
			log.Fatalf("markdemo: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	if *output == "" {
		fmt.Print(mark.ShaderCode())
		return
	}
	if err := os.WriteFile(*output, []byte(mark.ShaderCode()), 0o644); err != nil {
		log.Fatalf("markdemo: %v", err)
	}
	log.Printf("shader written to %s", *output)
}

// trackChannels builds a point track: genomic x, a dynamic baseline, a
// quantitative y and a categorical colour with a highlight condition.
func trackChannels(n int, rng *rand.Rand) []markgpu.NamedConfig {
	ids := make([]uint32, n)
	pos := make([]float32, n)
	val := make([]float32, n)
	cat := make([]uint32, n)
	for i := range n {
		ids[i] = uint32(i + 1)
		pos[i] = float32(i) * 1000
		val[i] = rng.Float32()
		cat[i] = uint32(rng.IntN(3))
	}
	return []markgpu.NamedConfig{
		{Name: "uniqueId", Config: markgpu.SeriesChannel(ids, 1)},
		{Name: "x", Config: markgpu.ChannelConfig{
			Data:  pos,
			Scale: &markgpu.ScaleConfig{Type: "linear", Domain: []float64{0, float64(n) * 1000}},
		}},
		{Name: "y", Config: markgpu.ChannelConfig{
			Data:  val,
			Scale: &markgpu.ScaleConfig{Type: "linear", Domain: []float64{0, 1}},
		}},
		{Name: "size", Config: markgpu.ChannelConfig{Value: []float64{4}, Dynamic: true}},
		{Name: "color", Config: markgpu.ChannelConfig{
			Data:            cat,
			Components:      4,
			InputComponents: 1,
			Scale: &markgpu.ScaleConfig{
				Type:   "ordinal",
				Domain: []float64{0, 1, 2},
				Range:  markgpu.Colors("#1b9e77", "#d95f02", "#7570b3"),
			},
			Conditions: []markgpu.Condition{{
				When:  markgpu.Predicate{Selection: "highlight", Type: markgpu.SelectionMulti},
				Value: []float64{1, 0, 0, 1},
			}},
		}},
	}
}

func buildReport(mark *markgpu.Mark, dev *gpucore.MemoryDevice) report {
	r := report{
		Label:       "track",
		Count:       mark.Count(),
		ShaderBytes: len(mark.ShaderCode()),
		Bindings:    []bindingReport{{Binding: 0, Name: "params", Role: "uniform"}},
		Live:        dev.Live(),
	}
	for i, res := range mark.ResourceLayout() {
		r.Bindings = append(r.Bindings, bindingReport{Binding: i + 1, Name: res.Name, Role: res.Role.String()})
	}
	for _, b := range mark.SeriesBuckets() {
		br := bucketReport{Buffer: b.Buffer, Stride: b.Stride, Bytes: b.Bytes}
		for _, e := range b.Channels {
			br.Channels = append(br.Channels, fmt.Sprintf("%s:%s@%d", e.Name, e.Type, e.Offset))
		}
		r.Series = append(r.Series, br)
	}
	return r
}
