package markgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/markgpu/gpucore"
)

// ErrNoDevice is returned by NewMark when RendererGlobals carries no device.
var ErrNoDevice = errors.New("markgpu: renderer globals have no device")

// RendererGlobals is the renderer state shared by every mark it draws.
// It is passed by value into NewMark; marks never reach back into the
// renderer.
type RendererGlobals struct {
	// Device allocates every mark resource.
	Device gpucore.Device

	// DefaultRanges maps a channel name to the range used by continuous
	// scales configured without one, typically the viewport extent for
	// x and y. Channels without an entry default to [0, 1].
	DefaultRanges map[string][]float64

	// GlobalsLayout is the @group(0) layout shared by all marks. It is
	// only needed by Mark.CreatePipeline. See CreateGlobalsLayout.
	GlobalsLayout gpucore.BindGroupLayoutID
}

// DefaultRange returns a copy of the default range of a channel, or nil.
func (g RendererGlobals) DefaultRange(channelName string) []float64 {
	r, ok := g.DefaultRanges[channelName]
	if !ok {
		return nil
	}
	return append([]float64(nil), r...)
}

// ViewportRanges returns default ranges mapping x to [0, width] and y to
// [0, height].
func ViewportRanges(width, height float64) map[string][]float64 {
	return map[string][]float64{
		"x":  {0, width},
		"x2": {0, width},
		"y":  {0, height},
		"y2": {0, height},
	}
}

// GlobalsUniformSize is the size of the default Globals block
// (width, height, dpr, uZero).
const GlobalsUniformSize = 16

// CreateGlobalsLayout creates the @group(0) layout for the default
// Globals block: one uniform buffer visible to both stages.
func CreateGlobalsLayout(dev gpucore.Device) (gpucore.BindGroupLayoutID, error) {
	id, err := dev.CreateBindGroupLayout(gpucore.BindGroupLayoutDesc{
		Label: "markgpu_globals",
		Entries: []gpucore.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gpucore.ShaderStageVertex | gpucore.ShaderStageFragment,
			Type:       gpucore.BindingTypeUniformBuffer,
		}},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("markgpu: globals layout: %w", err)
	}
	return id, nil
}
