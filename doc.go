// Package markgpu compiles declarative channel configurations of
// genomic visualization marks into GPU resources.
//
// # Overview
//
// A mark (points, rectangles, links, text) is described by a set of named
// channels. Each channel is either a per-instance series (a data slice),
// a constant value, or a dynamic value that can change without recompiling
// the shader. A channel may pass through a scale (linear, log, band,
// ordinal, threshold, ...) and may be conditioned on a selection.
//
// NewMark turns those channels into:
//   - a WGSL shader prelude with getScaled_<channel> functions,
//   - a packed storage buffer per scalar type holding all series data,
//   - a Params uniform block carrying scale stops and selection state,
//   - hash tables, ordinal range buffers and colour ramp textures,
//   - a bind group wiring all of it at @group(1).
//
// # Quick Start
//
//	dev := gpucore.NewMemoryDevice() // or render.OpenDevice(host)
//	globals := markgpu.RendererGlobals{Device: dev}
//
//	mark, err := markgpu.NewMark(globals, []markgpu.NamedConfig{
//	    {Name: "x", Config: markgpu.ChannelConfig{
//	        Data:  []float32{0, 10, 20},
//	        Scale: &markgpu.ScaleConfig{Type: "linear", Domain: []float64{0, 20}},
//	    }},
//	    {Name: "size", Config: markgpu.ValueChannel(4)},
//	}, markgpu.InferCount, markgpu.WithShaderBody(body))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mark.Close()
//
//	// Later: zoom.
//	_ = mark.UpdateScaleDomains(map[string][]float64{"x": {5, 15}})
//
// # Updates
//
// Every Update* call mutates resources in place. Buffers only grow; when a
// buffer or texture has to be replaced the bind group is rebuilt and
// BindGroup returns the new ID.
//
// # Logging
//
// markgpu is silent by default. See SetLogger.
package markgpu
