package shader

import (
	"fmt"

	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/selection"
	"github.com/gogpu/markgpu/internal/uniform"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// UniformLayout lays out the Params block: per channel its dynamic value
// and scale uniforms, then the selection and condition uniforms.
func UniformLayout(channels []channel.Named, defs []selection.Def) (*uniform.Layout, error) {
	var b uniform.Builder
	for _, ch := range channels {
		a := channel.Analyze(ch.Name, ch.Config)
		if !ch.Config.IsSeries() && ch.Config.Dynamic {
			b.Add(uniform.Field{Name: wgsl.ValuePrefix + ch.Name, Type: a.ScalarType, Components: a.InputComponents})
		}
		if a.HasScale() {
			if err := scale.AddUniforms(&b, a.Binding()); err != nil {
				return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
			}
		}
	}
	selection.AddUniforms(&b, defs)
	selection.AddConditionUniforms(&b, channels)
	return b.Build()
}
